//go:build linux

// Package xsys wraps the portable syscalls the local copy engine needs
// for device/special-file materialization (spec.md §4.8/§4.11) and
// --one-file-system device-id lookups, the same way the teacher reaches
// for golang.org/x/sys instead of hand-rolled syscall.Syscall plumbing.
package xsys

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Mknod creates a device or special file at path. kind must be one of the
// os.ModeDevice/os.ModeCharDevice/os.ModeNamedPipe/os.ModeSocket bits;
// major/minor are only meaningful for device nodes.
func Mknod(path string, perm os.FileMode, kind os.FileMode, major, minor uint32) error {
	mode := uint32(perm.Perm())
	switch {
	case kind&os.ModeNamedPipe != 0:
		return unix.Mkfifo(path, mode)
	case kind&os.ModeCharDevice != 0:
		mode |= unix.S_IFCHR
		return unix.Mknod(path, mode, int(unix.Mkdev(major, minor)))
	case kind&os.ModeDevice != 0:
		mode |= unix.S_IFBLK
		return unix.Mknod(path, mode, int(unix.Mkdev(major, minor)))
	case kind&os.ModeSocket != 0:
		mode |= unix.S_IFSOCK
		return unix.Mknod(path, mode, 0)
	default:
		return unix.Mknod(path, mode|unix.S_IFREG, 0)
	}
}

// DeviceID returns the filesystem device number backing path, used by
// --one-file-system to detect mount-point crossings.
func DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}

// RdevMajorMinor splits a raw rdev value (as reported by Lstat) into its
// major/minor components.
func RdevMajorMinor(rdev uint64) (major, minor uint32) {
	return unix.Major(rdev), unix.Minor(rdev)
}

// StatDevIno returns the (dev, ino) pair identifying fi's inode, used
// for source-side hardlink grouping (spec.md §3.1's hardlink_idx).
func StatDevIno(fi os.FileInfo) (dev uint64, ino uint64, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}

// StatOwner returns the uid/gid recorded in fi's platform stat info.
func StatOwner(fi os.FileInfo) (uid, gid uint32, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return st.Uid, st.Gid, true
}

// StatAtime returns the last-access time recorded in fi's platform stat
// info.
func StatAtime(fi os.FileInfo) (time.Time, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec), true
}

// StatRdev returns the raw device number of a device-special fi.
func StatRdev(fi os.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Rdev), true
}
