//go:build windows

package executor

import "os/exec"

// No process groups to sweep here; WaitDelay caps how long an orphaned
// pipe can hold the cycle after the direct child is killed.
func setSubprocessAttrs(_ *exec.Cmd) {}
