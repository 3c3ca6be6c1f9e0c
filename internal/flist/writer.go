package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub003"
	"github.com/oferchen/rsync-sub003/internal/rsyncwire"
)

// Options configures a Writer/Reader pair's wire shape. Every field here
// reflects a per-session negotiation outcome, not a filesystem property of
// any one entry (those live on Entry itself via optional pointer fields).
type Options struct {
	Protocol int

	// VarintFlags selects the varint xflags encoding (spec.md §4.5.3). When
	// false, the legacy one-byte/two-byte shapes are used, selected by
	// Protocol.
	VarintFlags bool

	// SafeFileList forces the safe end-marker shape even below protocol 31
	// (which always forces it on).
	SafeFileList bool

	PreserveHardlinks bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveCrtimes   bool
	PreserveAtimes    bool
	PreserveUID       bool
	PreserveGID       bool

	AlwaysChecksum bool
	ChecksumLength int
}

func (o Options) safeFileListEnabled() bool {
	return o.SafeFileList || o.Protocol >= 31
}

// varintFlagsEnabled reports the effective xflags wire shape. Protocol >= 30
// always uses the varint shape in practice (it is not actually optional at
// that point); VarintFlags only matters as an explicit override for 28/29.
func (o Options) varintFlagsEnabled() bool {
	return o.VarintFlags || o.Protocol >= 30
}

// Stats accumulates the entry count and total size (symlink target length
// for symlinks) described in spec.md §4.5.5, updated after each entry is
// written (or read).
type Stats struct {
	NumFiles  int
	TotalSize int64
}

// Writer serializes file-list entries to the wire, maintaining the
// compression state described in spec.md §3.2/§4.4 (component C5).
type Writer struct {
	out   io.Writer
	opts  Options
	state *State
	stats Stats

	entriesWritten uint32
}

func NewWriter(out io.Writer, opts Options) *Writer {
	return &Writer{out: out, opts: opts, state: NewState()}
}

func (w *Writer) Stats() Stats { return w.stats }

// WriteEntry serializes one entry per spec.md §4.5.1-§4.5.3, then updates
// the compression state identically to the reader.
func (w *Writer) WriteEntry(e *Entry) error {
	if e.IsHardlinkFollower() {
		if uint32(*e.HardlinkIdx) >= w.entriesWritten {
			return fmt.Errorf("flist: writer: hardlink follower %q references unwritten leader index %d", e.Name, *e.HardlinkIdx)
		}
	}

	flags := w.computeFlags(e)
	isDir := e.Kind() == KindDirectory

	if err := w.writeFlagBytes(flags); err != nil {
		return err
	}

	prefixLen := w.state.CalculateNamePrefixLen(e.Name)
	suffix := e.Name[prefixLen:]
	if flags&rsync.FlagSameName != 0 {
		if err := writeByte(w.out, byte(prefixLen)); err != nil {
			return err
		}
	}
	if flags&rsync.FlagLongName != 0 {
		if err := rsyncwire.WriteVarint30(w.out, int32(len(suffix)), w.opts.Protocol); err != nil {
			return err
		}
	} else {
		if err := writeByte(w.out, byte(len(suffix))); err != nil {
			return err
		}
	}
	if _, err := w.out.Write(suffix); err != nil {
		return err
	}

	isFollower := false
	if w.opts.PreserveHardlinks && w.opts.Protocol >= 30 && flags&rsync.FlagHlinked != 0 {
		if flags&rsync.FlagHlinkFirst == 0 {
			if err := rsyncwire.WriteVarint(w.out, int64(*e.HardlinkIdx)); err != nil {
				return err
			}
			isFollower = true
		}
	}

	if !isFollower {
		if err := w.writeBody(e, flags, isDir); err != nil {
			return err
		}
	}

	w.state.Update(e.Name, e.Mode, e.Mtime, uidOr0(e.UID), gidOr0(e.GID))
	if e.Atime != nil {
		w.state.UpdateAtime(*e.Atime)
	}
	if e.RdevMajor != nil {
		w.state.UpdateRdevMajor(*e.RdevMajor)
	}
	if e.HardlinkDev != nil {
		w.state.UpdateHardlinkDev(*e.HardlinkDev + 1)
	}

	w.entriesWritten++
	w.stats.NumFiles++
	if e.Kind() == KindSymlink {
		w.stats.TotalSize += int64(len(e.SymlinkTarget))
	} else {
		w.stats.TotalSize += int64(e.Size)
	}

	return nil
}

func (w *Writer) writeBody(e *Entry, flags uint32, isDir bool) error {
	// 4. size
	if w.opts.Protocol >= 30 {
		if err := rsyncwire.WriteVarlong(w.out, int64(e.Size), 3); err != nil {
			return err
		}
	} else {
		if err := rsyncwire.WriteLongint(w.out, int64(e.Size)); err != nil {
			return err
		}
	}

	// 5. mtime unless SAME_TIME
	if flags&rsync.FlagSameTime == 0 {
		if w.opts.Protocol >= 30 {
			if err := rsyncwire.WriteVarlong(w.out, e.Mtime, 4); err != nil {
				return err
			}
		} else {
			if err := writeInt32LE(w.out, int32(e.Mtime)); err != nil {
				return err
			}
		}
	}

	// 6. nsec if MOD_NSEC
	if flags&rsync.FlagModNsec != 0 {
		if err := rsyncwire.WriteVarint(w.out, int64(e.MtimeNsec)); err != nil {
			return err
		}
	}

	// 7. crtime if preserved and not CRTIME_EQ_MTIME
	if w.opts.PreserveCrtimes && w.opts.Protocol >= 32 && e.Crtime != nil && flags&rsync.FlagCrtimeEqMtime == 0 {
		if err := rsyncwire.WriteVarlong(w.out, *e.Crtime, 4); err != nil {
			return err
		}
	}

	// 8. mode unless SAME_MODE
	if flags&rsync.FlagSameMode == 0 {
		if err := writeInt32LE(w.out, int32(e.Mode)); err != nil {
			return err
		}
	}

	// 9. atime
	if !isDir && w.opts.PreserveAtimes && flags&rsync.FlagSameAtime == 0 {
		atime := int64(0)
		if e.Atime != nil {
			atime = *e.Atime
		}
		if err := rsyncwire.WriteVarlong(w.out, atime, 4); err != nil {
			return err
		}
	}

	// 10. uid + optional user name
	if w.opts.PreserveUID && flags&rsync.FlagSameUID == 0 {
		if err := writeInt32LE(w.out, int32(uidOr0(e.UID))); err != nil {
			return err
		}
		if flags&rsync.FlagUserNameFollows != 0 {
			if err := writeName(w.out, e.UserName); err != nil {
				return err
			}
		}
	}

	// 11. gid + optional group name
	if w.opts.PreserveGID && flags&rsync.FlagSameGID == 0 {
		if err := writeInt32LE(w.out, int32(gidOr0(e.GID))); err != nil {
			return err
		}
		if flags&rsync.FlagGroupNameFollows != 0 {
			if err := writeName(w.out, e.GroupName); err != nil {
				return err
			}
		}
	}

	// 12. rdev
	if e.RdevMajor != nil && e.RdevMinor != nil {
		if err := w.writeRdev(e, flags); err != nil {
			return err
		}
	} else if w.isDummyRdevKind(e) {
		if err := w.writeDummyRdev(flags); err != nil {
			return err
		}
	}

	// 13. symlink target
	if e.Kind() == KindSymlink && e.SymlinkTarget != nil {
		if err := rsyncwire.WriteVarint30(w.out, int32(len(e.SymlinkTarget)), w.opts.Protocol); err != nil {
			return err
		}
		if _, err := w.out.Write(e.SymlinkTarget); err != nil {
			return err
		}
	}

	// 14. hardlink dev/ino (protocol 28-29)
	if w.opts.Protocol < 30 && w.opts.PreserveHardlinks && e.HardlinkDev != nil {
		if flags&rsync.FlagSameDevPre30 == 0 {
			if err := rsyncwire.WriteLongint(w.out, *e.HardlinkDev+1); err != nil {
				return err
			}
		}
		ino := int64(0)
		if e.HardlinkIno != nil {
			ino = *e.HardlinkIno
		}
		if err := rsyncwire.WriteLongint(w.out, ino); err != nil {
			return err
		}
	}

	// 15. checksum
	if w.shouldWriteChecksum(e) {
		buf := make([]byte, w.opts.ChecksumLength)
		if e.Kind() == KindRegular || w.opts.Protocol < 28 {
			copy(buf, e.Checksum)
		}
		if _, err := w.out.Write(buf); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) isDummyRdevKind(e *Entry) bool {
	k := e.Kind()
	return w.opts.Protocol < 31 && w.opts.PreserveDevices && (k == KindFIFO || k == KindSocket)
}

func (w *Writer) writeDummyRdev(flags uint32) error {
	sameMajor := flags&rsync.FlagSameRdevMajor != 0
	if !sameMajor {
		if err := rsyncwire.WriteVarint30(w.out, 0, w.opts.Protocol); err != nil {
			return err
		}
	}
	if w.opts.Protocol >= 30 {
		return rsyncwire.WriteVarint(w.out, 0)
	}
	if flags&rsync.FlagRdevMinor8Pre30 != 0 {
		return writeByte(w.out, 0)
	}
	return writeInt32LE(w.out, 0)
}

func (w *Writer) writeRdev(e *Entry, flags uint32) error {
	if flags&rsync.FlagSameRdevMajor == 0 {
		if err := rsyncwire.WriteVarint30(w.out, int32(*e.RdevMajor), w.opts.Protocol); err != nil {
			return err
		}
	}
	if w.opts.Protocol >= 30 {
		return rsyncwire.WriteVarint(w.out, int64(*e.RdevMinor))
	}
	if flags&rsync.FlagRdevMinor8Pre30 != 0 {
		return writeByte(w.out, byte(*e.RdevMinor))
	}
	return writeInt32LE(w.out, int32(*e.RdevMinor))
}

func (w *Writer) shouldWriteChecksum(e *Entry) bool {
	if !w.opts.AlwaysChecksum {
		return false
	}
	return e.Kind() == KindRegular || w.opts.Protocol < 28
}

// computeFlags implements the flag-set calculation rules of spec.md §4.5.2.
func (w *Writer) computeFlags(e *Entry) uint32 {
	var f uint32
	k := e.Kind()
	isDir := k == KindDirectory
	isDevice := k == KindBlockDevice || k == KindCharDevice
	isSpecial := k == KindFIFO || k == KindSocket

	if e.Mode == w.state.PrevMode {
		f |= rsync.FlagSameMode
	}
	if e.Mtime == w.state.PrevMtime {
		f |= rsync.FlagSameTime
	}
	if w.opts.PreserveUID && e.UID != nil && *e.UID == w.state.PrevUID {
		f |= rsync.FlagSameUID
	}
	if w.opts.PreserveGID && e.GID != nil && *e.GID == w.state.PrevGID {
		f |= rsync.FlagSameGID
	}

	prefixLen := w.state.CalculateNamePrefixLen(e.Name)
	suffix := e.Name[prefixLen:]
	if prefixLen > 0 {
		f |= rsync.FlagSameName
	}
	if len(suffix) > 255 {
		f |= rsync.FlagLongName
	}

	if e.TopDir {
		f |= rsync.FlagTopDir
	}

	if isDevice {
		if e.RdevMajor != nil && *e.RdevMajor == w.state.PrevRdevMajor {
			f |= rsync.FlagSameRdevMajor
		}
		if w.opts.Protocol >= 28 && w.opts.Protocol < 30 && e.RdevMinor != nil && *e.RdevMinor <= 0xFF {
			f |= rsync.FlagRdevMinor8Pre30
		}
	} else if isSpecial && w.opts.Protocol < 31 && w.opts.PreserveDevices {
		if w.state.PrevRdevMajor == 0 {
			f |= rsync.FlagSameRdevMajor
		}
	}

	if isDir && !e.ContentDir {
		f |= rsync.FlagNoContentDir
	}

	if w.opts.PreserveHardlinks && w.opts.Protocol >= 30 && e.HardlinkIdx != nil {
		f |= rsync.FlagHlinked
		if *e.HardlinkIdx == HardlinkSentinel {
			f |= rsync.FlagHlinkFirst
		}
	}
	if w.opts.PreserveHardlinks && w.opts.Protocol < 30 && e.HardlinkDev != nil {
		if *e.HardlinkDev+1 == w.state.PrevHardlinkDev {
			f |= rsync.FlagSameDevPre30
		}
	}

	if w.opts.PreserveUID && w.opts.Protocol >= 30 && e.UserName != "" && (e.UID == nil || *e.UID != w.state.PrevUID) {
		f |= rsync.FlagUserNameFollows
	}
	if w.opts.PreserveGID && w.opts.Protocol >= 30 && e.GroupName != "" && (e.GID == nil || *e.GID != w.state.PrevGID) {
		f |= rsync.FlagGroupNameFollows
	}

	if w.opts.Protocol >= 31 && e.MtimeNsec != 0 {
		f |= rsync.FlagModNsec
	}

	if !isDir && w.opts.PreserveAtimes && e.Atime != nil && *e.Atime == w.state.PrevAtime {
		f |= rsync.FlagSameAtime
	}

	if w.opts.varintFlagsEnabled() && w.opts.PreserveCrtimes && w.opts.Protocol >= 32 && e.Crtime != nil && *e.Crtime == e.Mtime {
		f |= rsync.FlagCrtimeEqMtime
	}

	return f
}

func (w *Writer) writeFlagBytes(flags uint32) error {
	if w.opts.varintFlagsEnabled() {
		val := flags & 0xFFFFFF
		if val == 0 {
			val = rsync.ExtendedFlagsByte
		}
		return rsyncwire.WriteVarint(w.out, int64(val))
	}

	// Protocol 28-29 only below varintFlagsEnabled(): the two-byte
	// extended shape is the only way to disambiguate a genuinely zero
	// byte0 from the end-of-list marker, so it is used whenever byte0
	// would otherwise be zero, dir or not.
	byte1 := byte((flags >> 8) & 0xFF)
	byte0 := byte(flags & 0xFF)
	if byte1 != 0 || byte0 == 0 {
		low := byte0 | rsync.ExtendedFlagsByte
		if _, err := w.out.Write([]byte{low, byte1}); err != nil {
			return err
		}
		return nil
	}
	// byte0 is guaranteed nonzero here: the branch above already caught
	// byte1 != 0 || byte0 == 0.
	return writeByte(w.out, byte0)
}

// WriteEnd writes the end-of-file-list marker, conveying errorCode to the
// peer (spec.md §4.5.4). errorCode 0 means "no error".
func (w *Writer) WriteEnd(errorCode int32) error {
	if w.opts.varintFlagsEnabled() {
		if err := rsyncwire.WriteVarint(w.out, 0); err != nil {
			return err
		}
		return rsyncwire.WriteVarint(w.out, int64(errorCode))
	}

	if w.opts.safeFileListEnabled() && errorCode != 0 {
		if _, err := w.out.Write([]byte{rsync.ExtendedFlagsByte, 0x10}); err != nil {
			return err
		}
		return rsyncwire.WriteVarint(w.out, int64(errorCode))
	}

	return writeByte(w.out, 0)
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeInt32LE(w io.Writer, v int32) error {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := w.Write(buf)
	return err
}

func writeName(w io.Writer, name string) error {
	if len(name) > 255 {
		return fmt.Errorf("flist: name %q exceeds 255 bytes", name)
	}
	if err := writeByte(w, byte(len(name))); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

func uidOr0(u *uint32) uint32 {
	if u == nil {
		return 0
	}
	return *u
}

func gidOr0(g *uint32) uint32 {
	if g == nil {
		return 0
	}
	return *g
}
