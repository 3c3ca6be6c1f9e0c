package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub003"
	"github.com/oferchen/rsync-sub003/internal/rsyncwire"
)

// ErrEndOfList is returned by Reader.ReadEntry (wrapped with the
// transmitted error code) once the end marker has been consumed.
type ErrEndOfList struct {
	ErrorCode int32
}

func (e *ErrEndOfList) Error() string {
	return fmt.Sprintf("flist: end of file list (error code %d)", e.ErrorCode)
}

// Reader deserializes file-list entries from the wire, mirroring Writer
// exactly so that the compression state stays in lock-step (spec.md §4.6,
// component C6).
type Reader struct {
	in    io.Reader
	opts  Options
	state *State
	stats Stats

	entries []*Entry // full history, used to resolve hardlink leaders
}

func NewReader(in io.Reader, opts Options) *Reader {
	return &Reader{in: in, opts: opts, state: NewState()}
}

func (r *Reader) Stats() Stats { return r.stats }

// ReadEntry reads one entry, or returns *ErrEndOfList when the end marker
// is encountered.
func (r *Reader) ReadEntry() (*Entry, error) {
	flags, isEnd, errorCode, err := r.readFlagBytes()
	if err != nil {
		return nil, err
	}
	if isEnd {
		return nil, &ErrEndOfList{ErrorCode: errorCode}
	}

	if flags&rsync.FlagHlinkFirst != 0 && flags&rsync.FlagHlinked == 0 {
		return nil, fmt.Errorf("flist: reader: malformed flags: HLINK_FIRST without HLINKED")
	}

	e := &Entry{TopDir: flags&rsync.FlagTopDir != 0}

	var sameLen int
	if flags&rsync.FlagSameName != 0 {
		b, err := readByte(r.in)
		if err != nil {
			return nil, err
		}
		sameLen = int(b)
	}
	var suffixLen int32
	if flags&rsync.FlagLongName != 0 {
		suffixLen, err = rsyncwire.ReadVarint30(r.in, r.opts.Protocol)
		if err != nil {
			return nil, err
		}
	} else {
		b, err := readByte(r.in)
		if err != nil {
			return nil, err
		}
		suffixLen = int32(b)
	}
	suffix := make([]byte, suffixLen)
	if _, err := io.ReadFull(r.in, suffix); err != nil {
		return nil, err
	}
	name := make([]byte, sameLen+len(suffix))
	copy(name, r.state.PrevName[:sameLen])
	copy(name[sameLen:], suffix)
	e.Name = name

	isFollower := false
	if r.opts.PreserveHardlinks && r.opts.Protocol >= 30 && flags&rsync.FlagHlinked != 0 {
		if flags&rsync.FlagHlinkFirst == 0 {
			idx, err := rsyncwire.ReadVarint(r.in)
			if err != nil {
				return nil, err
			}
			u := uint32(idx)
			e.HardlinkIdx = &u
			isFollower = true
		} else {
			sentinel := uint32(HardlinkSentinel)
			e.HardlinkIdx = &sentinel
		}
	}

	if !isFollower {
		if err := r.readBody(e, flags); err != nil {
			return nil, err
		}
	}

	r.state.Update(e.Name, e.Mode, e.Mtime, uidOr0(e.UID), gidOr0(e.GID))
	if e.Atime != nil {
		r.state.UpdateAtime(*e.Atime)
	}
	if e.RdevMajor != nil {
		r.state.UpdateRdevMajor(*e.RdevMajor)
	}
	if e.HardlinkDev != nil {
		r.state.UpdateHardlinkDev(*e.HardlinkDev + 1)
	}

	r.entries = append(r.entries, e)
	r.stats.NumFiles++
	if e.Kind() == KindSymlink {
		r.stats.TotalSize += int64(len(e.SymlinkTarget))
	} else {
		r.stats.TotalSize += int64(e.Size)
	}

	return e, nil
}

func (r *Reader) readBody(e *Entry, flags uint32) error {
	// 4. size
	if r.opts.Protocol >= 30 {
		v, err := rsyncwire.ReadVarlong(r.in, 3)
		if err != nil {
			return err
		}
		e.Size = uint64(v)
	} else {
		v, err := rsyncwire.ReadLongint(r.in)
		if err != nil {
			return err
		}
		e.Size = uint64(v)
	}

	// 5. mtime unless SAME_TIME
	if flags&rsync.FlagSameTime != 0 {
		e.Mtime = r.state.PrevMtime
	} else if r.opts.Protocol >= 30 {
		v, err := rsyncwire.ReadVarlong(r.in, 4)
		if err != nil {
			return err
		}
		e.Mtime = v
	} else {
		v, err := readInt32LE(r.in)
		if err != nil {
			return err
		}
		e.Mtime = int64(v)
	}

	// 6. nsec
	if flags&rsync.FlagModNsec != 0 {
		v, err := rsyncwire.ReadVarint(r.in)
		if err != nil {
			return err
		}
		e.MtimeNsec = uint32(v)
	}

	// 7. crtime
	if r.opts.PreserveCrtimes && r.opts.Protocol >= 32 {
		if flags&rsync.FlagCrtimeEqMtime != 0 {
			v := e.Mtime
			e.Crtime = &v
		} else {
			v, err := rsyncwire.ReadVarlong(r.in, 4)
			if err != nil {
				return err
			}
			e.Crtime = &v
		}
	}

	// 8. mode unless SAME_MODE
	if flags&rsync.FlagSameMode != 0 {
		e.Mode = r.state.PrevMode
	} else {
		v, err := readInt32LE(r.in)
		if err != nil {
			return err
		}
		e.Mode = uint32(v)
	}
	isDir := e.Kind() == KindDirectory

	// 9. atime
	if !isDir {
		if flags&rsync.FlagSameAtime != 0 {
			v := r.state.PrevAtime
			e.Atime = &v
		} else if r.atimePreserved(flags) {
			v, err := rsyncwire.ReadVarlong(r.in, 4)
			if err != nil {
				return err
			}
			e.Atime = &v
		}
	}

	// 10. uid + optional user name
	if r.opts.PreserveUID {
		if flags&rsync.FlagSameUID != 0 {
			v := r.state.PrevUID
			e.UID = &v
		} else {
			v, err := readInt32LE(r.in)
			if err != nil {
				return err
			}
			u := uint32(v)
			e.UID = &u
			if flags&rsync.FlagUserNameFollows != 0 {
				name, err := readName(r.in)
				if err != nil {
					return err
				}
				e.UserName = name
			}
		}
	}

	// 11. gid + optional group name
	if r.opts.PreserveGID {
		if flags&rsync.FlagSameGID != 0 {
			v := r.state.PrevGID
			e.GID = &v
		} else {
			v, err := readInt32LE(r.in)
			if err != nil {
				return err
			}
			g := uint32(v)
			e.GID = &g
			if flags&rsync.FlagGroupNameFollows != 0 {
				name, err := readName(r.in)
				if err != nil {
					return err
				}
				e.GroupName = name
			}
		}
	}

	k := KindFromMode(e.Mode)
	isDevice := k == KindBlockDevice || k == KindCharDevice
	isSpecial := k == KindFIFO || k == KindSocket
	if isDevice {
		if err := r.readRdev(e, flags); err != nil {
			return err
		}
	} else if isSpecial && r.opts.Protocol < 31 && r.opts.PreserveDevices {
		if err := r.readDummyRdev(flags); err != nil {
			return err
		}
	}

	// 13. symlink target
	if k == KindSymlink {
		n, err := rsyncwire.ReadVarint30(r.in, r.opts.Protocol)
		if err != nil {
			return err
		}
		target := make([]byte, n)
		if _, err := io.ReadFull(r.in, target); err != nil {
			return err
		}
		e.SymlinkTarget = target
	}

	// 14. hardlink dev/ino (protocol 28-29)
	if r.opts.Protocol < 30 && r.opts.PreserveHardlinks {
		var dev int64
		if flags&rsync.FlagSameDevPre30 != 0 {
			dev = r.state.PrevHardlinkDev - 1
		} else {
			v, err := rsyncwire.ReadLongint(r.in)
			if err != nil {
				return err
			}
			dev = v - 1
		}
		e.HardlinkDev = &dev
		ino, err := rsyncwire.ReadLongint(r.in)
		if err != nil {
			return err
		}
		e.HardlinkIno = &ino
	}

	// 15. checksum
	if r.shouldReadChecksum(k) {
		buf := make([]byte, r.opts.ChecksumLength)
		if _, err := io.ReadFull(r.in, buf); err != nil {
			return err
		}
		e.Checksum = buf
	}

	return nil
}

func (r *Reader) atimePreserved(flags uint32) bool {
	return r.opts.PreserveAtimes
}

func (r *Reader) readRdev(e *Entry, flags uint32) error {
	var major int32
	var err error
	if flags&rsync.FlagSameRdevMajor != 0 {
		major = int32(r.state.PrevRdevMajor)
	} else {
		major, err = rsyncwire.ReadVarint30(r.in, r.opts.Protocol)
		if err != nil {
			return err
		}
	}
	m := uint32(major)
	e.RdevMajor = &m

	var minor int64
	if r.opts.Protocol >= 30 {
		minor, err = rsyncwire.ReadVarint(r.in)
		if err != nil {
			return err
		}
	} else if flags&rsync.FlagRdevMinor8Pre30 != 0 {
		b, err := readByte(r.in)
		if err != nil {
			return err
		}
		minor = int64(b)
	} else {
		v, err := readInt32LE(r.in)
		if err != nil {
			return err
		}
		minor = int64(v)
	}
	mn := uint32(minor)
	e.RdevMinor = &mn
	return nil
}

func (r *Reader) readDummyRdev(flags uint32) error {
	if flags&rsync.FlagSameRdevMajor == 0 {
		if _, err := rsyncwire.ReadVarint30(r.in, r.opts.Protocol); err != nil {
			return err
		}
	}
	if r.opts.Protocol >= 30 {
		_, err := rsyncwire.ReadVarint(r.in)
		return err
	}
	if flags&rsync.FlagRdevMinor8Pre30 != 0 {
		_, err := readByte(r.in)
		return err
	}
	_, err := readInt32LE(r.in)
	return err
}

func (r *Reader) shouldReadChecksum(k Kind) bool {
	if !r.opts.AlwaysChecksum {
		return false
	}
	return k == KindRegular || r.opts.Protocol < 28
}

// readFlagBytes mirrors writeFlagBytes, additionally recognizing all three
// shapes of the end-of-list marker (spec.md §4.5.4).
func (r *Reader) readFlagBytes() (flags uint32, isEnd bool, errorCode int32, err error) {
	if r.opts.varintFlagsEnabled() {
		v, err := rsyncwire.ReadVarint(r.in)
		if err != nil {
			return 0, false, 0, err
		}
		if v == 0 {
			code, err := rsyncwire.ReadVarint(r.in)
			if err != nil {
				return 0, false, 0, err
			}
			return 0, true, int32(code), nil
		}
		return uint32(v), false, 0, nil
	}

	if r.opts.Protocol >= 28 && r.opts.Protocol < 30 {
		b0, err := readByte(r.in)
		if err != nil {
			return 0, false, 0, err
		}
		if b0&rsync.ExtendedFlagsByte != 0 {
			b1, err := readByte(r.in)
			if err != nil {
				return 0, false, 0, err
			}
			if b1 == 0x10 { // IO_ERROR_ENDLIST
				code, err := rsyncwire.ReadVarint(r.in)
				if err != nil {
					return 0, false, 0, err
				}
				return 0, true, int32(code), nil
			}
			low := b0 &^ rsync.ExtendedFlagsByte
			return uint32(low) | uint32(b1)<<8, false, 0, nil
		}
		if b0 == 0 {
			return 0, true, 0, nil
		}
		return uint32(b0), false, 0, nil
	}

	b0, err := readByte(r.in)
	if err != nil {
		return 0, false, 0, err
	}
	if b0 == 0 {
		return 0, true, 0, nil
	}
	return uint32(b0), false, 0, nil
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readInt32LE(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24), nil
}

func readName(r io.Reader) (string, error) {
	n, err := readByte(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
