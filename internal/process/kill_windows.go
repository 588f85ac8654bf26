//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// setProcessGroup — на windows дерево убивается через taskkill /T,
// отдельная группа не нужна.
func setProcessGroup(_ *exec.Cmd) {}

// killTree убивает процесс и всех его потомков.
func killTree(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}
