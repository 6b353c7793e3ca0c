package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon spawns `webmon serve` detached from the terminal and returns
// its pid. An empty binaryPath uses the running executable.
func StartDaemon(binaryPath, configPath string) (int, error) {
	if binaryPath == "" {
		executable, err := os.Executable()
		if err != nil {
			return 0, err
		}
		binaryPath = executable
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(binaryPath, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// The child outlives us
	_ = cmd.Process.Release()
	return pid, nil
}
