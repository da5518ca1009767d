//go:build linux

package syshealth

import "golang.org/x/sys/unix"

func statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	frsize := uint64(st.Frsize)
	if frsize == 0 {
		frsize = uint64(st.Bsize)
	}
	return frsize * st.Blocks, frsize * st.Bavail, nil
}
