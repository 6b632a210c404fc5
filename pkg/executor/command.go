package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// killWaitDelay bounds how long Wait keeps the output pipes open after
// the action is killed. Without it a subordinate process that inherited
// the pipes keeps the cycle blocked for its own lifetime.
const killWaitDelay = 2 * time.Second

// runShell hands the command line to the platform interpreter verbatim.
// The controller is the sole trusted command source; no escaping happens
// here.
func (e *Executor) runShell(ctx context.Context, command string) string {
	var name string
	var args []string
	if runtime.GOOS == "windows" {
		name, args = "cmd", []string{"/C", command}
	} else {
		name, args = "sh", []string{"-c", command}
	}
	out, err := e.runProcess(ctx, name, args...)
	if err != nil {
		return fmt.Sprintf("Failed to execute command: %s", err)
	}
	return out
}

// runFile executes a named local file under the configured interpreter.
// A missing file yields a normal result, no subordinate process.
func (e *Executor) runFile(ctx context.Context, filename string) string {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File '%s' not found", filename)
		}
		return fmt.Sprintf("Error: File '%s' not accessible: %s", filename, err)
	}
	out, err := e.runProcess(ctx, e.interpreter, filename)
	if err != nil {
		return fmt.Sprintf("Failed to execute file: %s", err)
	}
	return out
}

// runProcess launches one subordinate process with the action timeout
// applied and waits for it, capturing combined stdout and stderr. A
// non-zero exit is not an error here: whatever the process printed is
// the result. The returned error covers only the cases where there is no
// output to report (start failure, timeout).
func (e *Executor) runProcess(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	setSubprocessAttrs(cmd)
	cmd.WaitDelay = killWaitDelay
	out, err := cmd.CombinedOutput()

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("timed out after %s", e.actionTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", err
		}
		e.logger.With("exit-status", err).Debug("process exited non-zero")
	}
	return string(out), nil
}
