package rsyncopts

import (
	"strconv"
	"time"
)

// The accessors in this file expose the option fields
// internal/copyengine's Options record needs; the client/server wire
// accessors in rsyncopts.go predate the local copy engine and only covered the
// fields rsync/main.c's start_client needed.

func (o *Options) SizeOnly() bool          { return o.size_only != 0 }
func (o *Options) OneFileSystem() bool     { return o.one_file_system != 0 }
func (o *Options) IgnoreExisting() bool    { return o.ignore_existing != 0 }
func (o *Options) RelativePaths() bool     { return o.relative_paths != 0 }
func (o *Options) ImpliedDirs() bool       { return o.implied_dirs != 0 }
func (o *Options) MkpathDest() bool        { return o.mkpath_dest_arg != 0 }
func (o *Options) PruneEmptyDirs() bool    { return o.prune_empty_dirs != 0 }
func (o *Options) CopyLinks() bool         { return o.copy_links != 0 }
func (o *Options) CopyDirlinks() bool      { return o.copy_dirlinks != 0 }
func (o *Options) KeepDirlinks() bool      { return o.keep_dirlinks != 0 }
func (o *Options) SparseFiles() bool       { return o.sparse_files != 0 }
func (o *Options) Inplace() bool           { return o.inplace != 0 }
func (o *Options) Append() bool            { return o.append_mode == 1 }
func (o *Options) AppendVerify() bool      { return o.append_mode == 2 }
func (o *Options) WholeFile() bool         { return o.whole_file == 1 }
func (o *Options) Preallocate() bool       { return o.preallocate_files != 0 }
func (o *Options) KeepPartial() bool       { return o.keep_partial != 0 }
func (o *Options) PartialDir() string      { return o.partial_dir }
func (o *Options) TmpDir() string          { return o.tmpdir }
func (o *Options) DelayUpdates() bool      { return o.delay_updates != 0 }
func (o *Options) DeleteExcluded() bool    { return o.delete_excluded != 0 }
func (o *Options) MaxDelete() int          { return o.max_delete }
func (o *Options) RemoveSourceFiles() bool { return o.remove_source_files != 0 }
func (o *Options) MakeBackups() bool       { return o.make_backups != 0 }
func (o *Options) BackupDir() string       { return o.backup_dir }
func (o *Options) BackupSuffix() string    { return o.backup_suffix }
func (o *Options) ChecksumChoice() string  { return o.checksum_choice }
func (o *Options) ChecksumSeed() int32     { return int32(o.checksum_seed) }
func (o *Options) IgnoreNonExisting() bool { return o.ignore_non_existing != 0 }
func (o *Options) BWLimitKBps() int        { return o.bwlimit }
func (o *Options) PreserveACLs() bool      { return o.preserve_acls != 0 }
func (o *Options) PreserveXattrs() bool    { return o.preserve_xattrs != 0 }
func (o *Options) PreserveAtimes() bool    { return o.preserve_atimes != 0 }
func (o *Options) PreserveCrtimes() bool   { return o.preserve_crtimes != 0 }
func (o *Options) OmitDirTimes() bool      { return o.omit_dir_times != 0 }
func (o *Options) OmitLinkTimes() bool     { return o.omit_link_times != 0 }
func (o *Options) NumericIDs() bool        { return o.numeric_ids != 0 }
func (o *Options) SafeSymlinks() bool      { return o.safe_symlinks != 0 }
func (o *Options) CopyUnsafeLinks() bool   { return o.copy_unsafe_links != 0 }
func (o *Options) DoStats() bool           { return o.do_stats != 0 }
func (o *Options) ListOnly() bool          { return o.list_only != 0 }

// ModifyWindow returns --modify-window as a time.Duration; the option is
// stored in whole seconds.
func (o *Options) ModifyWindow() time.Duration {
	return time.Duration(o.modify_window) * time.Second
}

func (o *Options) TimeoutDuration() time.Duration {
	return time.Duration(o.io_timeout) * time.Second
}

func (o *Options) ConnectTimeoutDuration() time.Duration {
	return time.Duration(o.connect_timeout) * time.Second
}

// MinSize/MaxSize parse the --min-size/--max-size arguments as plain
// decimal byte counts, returning 0 (unbounded) when unset or unparsable.
// Size suffixes such as "10K" or "1M" are not recognised and also yield 0.
func (o *Options) MinSize() int64 { return parseSizeArg(o.min_size_arg) }
func (o *Options) MaxSize() int64 { return parseSizeArg(o.max_size_arg) }

func parseSizeArg(arg string) int64 {
	if arg == "" {
		return 0
	}
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DeleteSelected reports whether any --delete variant was requested, and
// which copyengine.DeleteMode-shaped phase it selects: 0 none, 1 before,
// 2 during, 3 after, 4 delay. Kept as an int rather than importing
// copyengine (which would invert the package layering) so cmd/gokr-rsync
// does the final translation to copyengine.DeleteMode.
func (o *Options) DeleteSelected() int {
	switch {
	case o.delete_before != 0:
		return 1
	case o.delete_after != 0:
		return 3
	case o.delete_during == 2, o.delay_updates != 0 && o.delete_mode != 0:
		return 4
	case o.delete_mode != 0 || o.delete_during != 0:
		return 2
	default:
		return 0
	}
}
