//go:build darwin

package syshealth

import "golang.org/x/sys/unix"

func statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return bsize * st.Blocks, bsize * st.Bavail, nil
}
