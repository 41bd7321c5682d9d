package llvmsrc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/llvmsrc/internal/artifact"
	"github.com/goplus/llvmsrc/internal/build"
	"github.com/goplus/llvmsrc/internal/build/lockedfile"
	"github.com/goplus/llvmsrc/internal/env"
	"github.com/goplus/llvmsrc/internal/proc"
	"github.com/goplus/llvmsrc/internal/source"
	"github.com/goplus/llvmsrc/internal/vcs"
)

// Cache root layout:
//
//	<cache_root>/
//	  .lock
//	  src/<revision>/
//	  build/<config-hash>/
const lockFile = ".lock"

// Build acquires the source, builds and installs it, and locates the
// artifacts. The whole pipeline holds the cache lock. With an unchanged
// configuration a second Build runs no external process.
func (b *Builder) Build(ctx context.Context) (*Artifacts, error) {
	cfg := b.Config()
	if err := build.CheckOptions(cfg.Options); err != nil {
		return nil, &StageError{Stage: StageBuild, Err: err}
	}
	root, err := cacheRoot(cfg)
	if err != nil {
		return nil, &StageError{Stage: StageLock, Err: err}
	}
	log := b.log.With("component", "llvmsrc")

	unlock, err := lock(ctx, root, cfg)
	if err != nil {
		return nil, &StageError{Stage: StageLock, Path: filepath.Join(root, lockFile), Err: err}
	}
	defer unlock()

	runner := proc.NewExec()

	git := vcs.NewGitVCS(vcs.WithGitPath(cfg.Toolchain.Git), vcs.WithRunner(runner))
	acq := source.NewAcquirer(git, cfg.Remote, filepath.Join(root, "src"), b.log)
	tree, err := acq.Acquire(ctx, cfg.Revision)
	if err != nil {
		return nil, &StageError{Stage: StageAcquire, Path: acq.Dir(cfg.Revision), Err: err}
	}

	spec := buildSpec(cfg, tree.Commit)
	hash, err := spec.Hash()
	if err != nil {
		return nil, &StageError{Stage: StageBuild, Err: err}
	}
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = env.Jobs()
	}
	opts := []build.Option{
		build.WithRunner(runner),
		build.WithJobs(jobs),
		build.WithLogger(b.log),
	}
	if cfg.Verbose {
		opts = append(opts, build.WithOutput(b.stdout, b.stderr))
	}
	bld := build.NewBuilder(filepath.Join(root, "build"), opts...)
	out, err := bld.Build(ctx, tree, spec)
	if err != nil {
		return nil, &StageError{Stage: StageBuild, ConfigHash: hash, Path: bld.Dir(hash), Err: err}
	}

	layout := cfg.Layout
	if layout.Required == nil {
		layout.Required = artifact.Required(cfg.Components)
	}
	res, err := artifact.Locate(out.InstallDir, layout, cfg.Revision)
	if err != nil {
		return nil, &StageError{Stage: StageLocate, ConfigHash: hash, Path: out.InstallDir, Err: err}
	}

	log.Info("LLVM ready", "revision", cfg.Revision, "version", res.Version, "prefix", res.Prefix)
	return newArtifacts(res, tree, out), nil
}

// Clean removes the cached sources and build outputs. It waits for the
// cache lock like Build does.
func (b *Builder) Clean(ctx context.Context) error {
	cfg := b.Config()
	root, err := cacheRoot(cfg)
	if err != nil {
		return err
	}
	unlock, err := lock(ctx, root, cfg)
	if err != nil {
		return &StageError{Stage: StageLock, Path: filepath.Join(root, lockFile), Err: err}
	}
	defer unlock()

	b.log.Info("removing cache", "component", "llvmsrc", "dir", root)
	for _, dir := range []string{"src", "build"} {
		if err := os.RemoveAll(filepath.Join(root, dir)); err != nil {
			return err
		}
	}
	return nil
}

func cacheRoot(cfg Config) (string, error) {
	if cfg.CacheDir != "" {
		return filepath.Abs(cfg.CacheDir)
	}
	return env.WorkDir()
}

func lock(ctx context.Context, root string, cfg Config) (unlock func(), err error) {
	unlock, err = lockedfile.MutexAt(filepath.Join(root, lockFile)).LockContext(ctx, cfg.LockTimeout)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("waiting for cache lock: %w: %w", ErrCancelled, err)
	}
	return unlock, err
}

// buildSpec collects every config input that changes the build output.
func buildSpec(cfg Config, commit string) *build.Spec {
	return &build.Spec{
		Remote:     cfg.Remote,
		Revision:   cfg.Revision,
		Commit:     commit,
		Components: cfg.Components,
		Targets:    cfg.Targets,
		Options:    cfg.Options,
		Host:       cfg.Host,
		Target:     cfg.Target,
		Profile:    cfg.Profile,
		Generator:  cfg.Generator,
		CMake:      cfg.Toolchain.CMake,
		Ninja:      cfg.Toolchain.Ninja,
	}
}
