//go:build windows

package shell

import (
	"fmt"
	"os/exec"
)

func setupProcessGroup(cmd *exec.Cmd) {
	// Windows doesn't use process groups the same way Unix does.
}

func interruptProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Without /F this asks the console subsystem to close the process tree
	// gracefully; killProcessGroup escalates to /F if it's still alive.
	exec.Command("taskkill", "/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid)).Run()
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	exec.Command("taskkill", "/T", "/F", "/PID", fmt.Sprintf("%d", cmd.Process.Pid)).Run()
}
