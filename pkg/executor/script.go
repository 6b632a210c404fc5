package executor

import (
	"context"
	"fmt"
	"os"
)

// runInline writes the supplied source text to a transient file and runs
// it under the configured interpreter in a subordinate process, so a
// crash or hang in the action cannot destabilize the agent. The file is
// removed on every exit path.
func (e *Executor) runInline(ctx context.Context, code string) string {
	tmp, err := os.CreateTemp("", "runfleet-*.py")
	if err != nil {
		return fmt.Sprintf("Failed to execute inline code: %s", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return fmt.Sprintf("Failed to execute inline code: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Sprintf("Failed to execute inline code: %s", err)
	}

	out, err := e.runProcess(ctx, e.interpreter, tmp.Name())
	if err != nil {
		return fmt.Sprintf("Failed to execute inline code: %s", err)
	}
	return out
}
