//go:build !unix

package generator

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, kill bool) {
	_ = cmd.Process.Kill()
}
