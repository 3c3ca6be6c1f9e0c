//go:build !linux

package xsys

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// Mknod creates a device or special file at path where the platform
// exposes one (FIFOs via syscall.Mkfifo);
// block/char device and socket nodes need root and a real mknod(2),
// unavailable portably outside Linux in this module.
func Mknod(path string, perm os.FileMode, kind os.FileMode, major, minor uint32) error {
	if kind&os.ModeNamedPipe != 0 {
		return syscall.Mkfifo(path, uint32(perm.Perm()))
	}
	return fmt.Errorf("xsys: device/special node creation not supported on this platform")
}

// DeviceID returns the filesystem device number backing path.
func DeviceID(path string) (uint64, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	dev, _, ok := StatDevIno(fi)
	if !ok {
		return 0, nil
	}
	return dev, nil
}

// RdevMajorMinor is unavailable in portable form outside Linux; returns
// zeros rather than guessing at a platform-specific bit layout.
func RdevMajorMinor(rdev uint64) (major, minor uint32) {
	return 0, 0
}

// StatDevIno returns the (dev, ino) pair identifying fi's inode when the
// platform's Stat_t exposes them.
func StatDevIno(fi os.FileInfo) (dev uint64, ino uint64, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}

// StatOwner returns the uid/gid recorded in fi's platform stat info, where
// available.
func StatOwner(fi os.FileInfo) (uid, gid uint32, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint32(st.Uid), uint32(st.Gid), true
}

// StatAtime is unavailable in portable form outside Linux in this module.
func StatAtime(fi os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}

// StatRdev is unavailable in portable form outside Linux in this module.
func StatRdev(fi os.FileInfo) (uint64, bool) {
	return 0, false
}
