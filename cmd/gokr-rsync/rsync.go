// Tool gokr-rsync drives the local copy engine directly (component C11)
// for local-to-local invocations, lists a daemon's modules (component
// C15) for "host::" / "rsync://" operands, and serves module listings
// itself under --daemon.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/oferchen/rsync-sub003/internal/bwlimit"
	"github.com/oferchen/rsync-sub003/internal/copyengine"
	"github.com/oferchen/rsync-sub003/internal/copyplan"
	"github.com/oferchen/rsync-sub003/internal/log"
	"github.com/oferchen/rsync-sub003/internal/metaflags"
	"github.com/oferchen/rsync-sub003/internal/refdir"
	"github.com/oferchen/rsync-sub003/internal/restrict"
	"github.com/oferchen/rsync-sub003/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
	"github.com/oferchen/rsync-sub003/internal/rsyncopts"
	"github.com/oferchen/rsync-sub003/internal/rsyncos"
	"github.com/oferchen/rsync-sub003/internal/statsformat"
	"github.com/oferchen/rsync-sub003/rsyncclient"
	"github.com/oferchen/rsync-sub003/rsyncd"
)

func main() {
	osenv := &rsyncos.Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	if err := run(context.Background(), osenv, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gokr-rsync:", err)
		os.Exit(rsyncerr.ExitCode(err))
	}
}

func run(ctx context.Context, osenv *rsyncos.Env, args []string) error {
	pc, err := rsyncopts.ParseArguments(osenv, args[1:])
	if err != nil {
		return err
	}
	opts := pc.Options
	operands := pc.RemainingArgs

	if opts.Daemon() {
		return runDaemon(ctx, osenv)
	}

	if len(operands) == 0 {
		fmt.Fprintln(osenv.Stderr, opts.Help())
		return &rsyncerr.InvalidArgumentError{Reason: "no source/destination operands given"}
	}

	if ref, ok, err := rsyncclient.ParseReference(operands[len(operands)-1]); err != nil {
		return err
	} else if ok {
		return runList(ctx, osenv, ref)
	}
	if ref, ok, err := rsyncclient.ParseReference(operands[0]); err != nil {
		return err
	} else if ok {
		return runList(ctx, osenv, ref)
	}

	return runLocalCopy(ctx, osenv, opts, operands)
}

// runList enumerates a daemon's modules, the one operation this core
// implements past the remote handshake (named-module transfer is
// rejected by the daemon side and has no client-side counterpart here).
func runList(ctx context.Context, osenv *rsyncos.Env, ref rsyncclient.Reference) error {
	client := rsyncclient.New(ref, os.Getenv("RSYNC_PASSWORD"))
	list, err := client.List(ctx)
	if err != nil {
		return err
	}
	for _, line := range list.MOTDLines {
		fmt.Fprintln(osenv.Stdout, line)
	}
	for _, entry := range list.Entries {
		if entry.HasComment {
			fmt.Fprintf(osenv.Stdout, "%-20s%s\n", entry.Name, entry.Comment)
		} else {
			fmt.Fprintln(osenv.Stdout, entry.Name)
		}
	}
	return nil
}

// runDaemon loads the module configuration and serves module listings
// until ctx is canceled (by SIGINT/SIGTERM).
func runDaemon(ctx context.Context, osenv *rsyncos.Env) error {
	cfg, path, err := rsyncdconfig.FromDefaultFiles()
	if err != nil {
		return rsyncerr.NewIOError("load daemon configuration", path, err)
	}

	if osenv.Restrict() {
		if err := restrictToModules(cfg.Modules); err != nil {
			osenv.Logf("restricting filesystem access: %v", err)
		}
	}

	server, err := rsyncd.NewServer(cfg.Modules, rsyncd.WithStderr(osenv.Stderr), rsyncd.WithLogger(log.New(osenv.Stderr)))
	if err != nil {
		return err
	}

	addr := "0.0.0.0:873"
	if len(cfg.Listeners) > 0 && cfg.Listeners[0].Rsyncd != "" {
		addr = cfg.Listeners[0].Rsyncd
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return rsyncerr.NewIOError("listen", addr, err)
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, ln)
}

// restrictToModules mirrors rsyncd's own module-scoped sandboxing
// (internal/restrict), applied once at daemon startup to every
// configured module root.
func restrictToModules(modules []rsyncd.Module) error {
	roDirs := make([]string, 0, len(modules))
	rwDirs := make([]string, 0, len(modules))
	for _, mod := range modules {
		if mod.Writable {
			rwDirs = append(rwDirs, mod.Path)
		} else {
			roDirs = append(roDirs, mod.Path)
		}
	}
	return restrict.MaybeFileSystem(roDirs, rwDirs)
}

// runLocalCopy resolves operands to a copyplan.Plan and executes it
// through the local copy engine (spec.md §4.10/§4.11).
func runLocalCopy(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, operands []string) error {
	plan, err := copyplan.Resolve(operands, opts.RelativePaths())
	if err != nil {
		return &rsyncerr.InvalidArgumentError{Reason: err.Error()}
	}

	engine := copyengine.New(buildEngineOptions(opts))

	stats, err := engine.Run(ctx, plan)
	if err != nil {
		return err
	}

	if opts.DoStats() {
		fmt.Fprintln(osenv.Stdout, statsformat.Format(stats))
	}
	return nil
}

func buildEngineOptions(opts *rsyncopts.Options) copyengine.Options {
	var bwLimiter *bwlimit.Limiter
	if kbps := opts.BWLimitKBps(); kbps > 0 {
		bwLimiter = bwlimit.New(kbps*1024, 0)
	}

	return copyengine.Options{
		DryRun: opts.DryRun(),

		Checksum:       opts.AlwaysChecksum(),
		ChecksumChoice: opts.ChecksumChoice(),
		ChecksumSeed:   opts.ChecksumSeed(),

		SizeOnly:          opts.SizeOnly(),
		IgnoreExisting:    opts.IgnoreExisting(),
		IgnoreMissingArgs: opts.IgnoreNonExisting(),
		Update:            opts.UpdateOnly(),
		ModifyWindow:      opts.ModifyWindow(),

		WholeFile: opts.WholeFile(),

		Sparse:       opts.SparseFiles(),
		Inplace:      opts.Inplace(),
		Append:       opts.Append(),
		AppendVerify: opts.AppendVerify(),
		Preallocate:  opts.Preallocate(),

		Partial:      opts.KeepPartial(),
		PartialDir:   opts.PartialDir(),
		TempDir:      opts.TmpDir(),
		DelayUpdates: opts.DelayUpdates(),

		DeleteMode:     deleteModeFromSelection(opts.DeleteSelected()),
		DeleteExcluded: opts.DeleteExcluded(),
		MaxDelete:      opts.MaxDelete(),

		MinSize: opts.MinSize(),
		MaxSize: opts.MaxSize(),

		Policy: metaflags.Policy{
			Perms:           opts.PreservePerms(),
			Times:           opts.PreserveMTimes(),
			Owner:           opts.PreserveUid(),
			Group:           opts.PreserveGid(),
			Devices:         opts.PreserveDevices(),
			Specials:        opts.PreserveSpecials(),
			Hardlinks:       opts.PreserveHardLinks(),
			ACLs:            opts.PreserveACLs(),
			Xattrs:          opts.PreserveXattrs(),
			Atimes:          opts.PreserveAtimes(),
			Crtimes:         opts.PreserveCrtimes(),
			OmitDirTimes:    opts.OmitDirTimes(),
			OmitLinkTimes:   opts.OmitLinkTimes(),
			NumericIDs:      opts.NumericIDs(),
			SafeLinks:       opts.SafeSymlinks(),
			CopyUnsafeLinks: opts.CopyUnsafeLinks(),
		},

		OneFileSystem:  opts.OneFileSystem(),
		Relative:       opts.RelativePaths(),
		ImpliedDirs:    opts.ImpliedDirs(),
		Mkpath:         opts.MkpathDest(),
		PruneEmptyDirs: opts.PruneEmptyDirs(),

		CopyLinks:    opts.CopyLinks(),
		CopyDirLinks: opts.CopyDirlinks(),
		KeepDirLinks: opts.KeepDirlinks(),

		RefDirs: refdir.Lists{},

		RemoveSourceFiles: opts.RemoveSourceFiles(),

		Timeout:        opts.TimeoutDuration(),
		ConnectTimeout: opts.ConnectTimeoutDuration(),

		BWLimit: bwLimiter,

		Backup:    opts.MakeBackups(),
		BackupDir: opts.BackupDir(),
		Suffix:    opts.BackupSuffix(),

		CollectEvents: false,
	}
}

func deleteModeFromSelection(selected int) copyengine.DeleteMode {
	switch selected {
	case 1:
		return copyengine.DeleteBefore
	case 2:
		return copyengine.DeleteDuring
	case 3:
		return copyengine.DeleteAfter
	case 4:
		return copyengine.DeleteDelay
	default:
		return copyengine.DeleteNone
	}
}
