//go:build !linux && !darwin

package syshealth

import (
	"fmt"
	"runtime"
)

func statfs(string) (uint64, uint64, error) {
	return 0, 0, fmt.Errorf("syshealth: disk usage unsupported on %s", runtime.GOOS)
}
