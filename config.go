// Package llvmsrc builds LLVM from source for a parent build process and
// reports where the libraries, headers and tools ended up.
//
// Builds are idempotent: sources are cached per revision and build outputs
// per configuration, so a repeated Build with the same configuration runs no
// external process at all.
//
//	a, err := llvmsrc.New().Revision("llvmorg-16.0.0").Components("clang").Build(ctx)
//	if err != nil {
//		return err
//	}
//	a.PrintCargoMetadata()
package llvmsrc

import (
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goplus/llvmsrc/internal/artifact"
	"github.com/goplus/llvmsrc/internal/env"
)

const (
	DefaultRemote   = "https://github.com/llvm/llvm-project.git"
	DefaultRevision = "llvmorg-15.0.7"
	DefaultProfile  = "Release"

	// DefaultLockTimeout is how long Build waits for another build holding
	// the cache.
	DefaultLockTimeout = time.Hour
)

// Toolchain names the external tools. Empty fields are looked up in PATH.
type Toolchain struct {
	Git   string
	CMake string
	Ninja string
}

// Config is an immutable build configuration. Obtain one from
// Builder.Config.
type Config struct {
	Remote     string
	Revision   string
	CacheDir   string
	Components []string
	Targets    []string
	Options    map[string]string
	Host       string
	Target     string
	Profile    string
	Jobs       int
	Generator  string // CMake generator, default Ninja
	Toolchain  Toolchain

	LockTimeout time.Duration
	Layout      Layout
	Verbose     bool
}

func (c Config) clone() Config {
	c.Components = slices.Clone(c.Components)
	c.Targets = slices.Clone(c.Targets)
	c.Options = maps.Clone(c.Options)
	c.Layout.LibDirs = slices.Clone(c.Layout.LibDirs)
	c.Layout.IncludeDirs = slices.Clone(c.Layout.IncludeDirs)
	c.Layout.BinDirs = slices.Clone(c.Layout.BinDirs)
	c.Layout.Required = slices.Clone(c.Layout.Required)
	return c
}

// Builder configures and runs an LLVM build. Setters return the Builder so
// calls can be chained.
type Builder struct {
	cfg    Config
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// New returns a Builder with the default remote, revision and profile.
func New() *Builder {
	return &Builder{
		cfg: Config{
			Remote:      DefaultRemote,
			Revision:    DefaultRevision,
			Profile:     DefaultProfile,
			LockTimeout: DefaultLockTimeout,
			Layout:      artifact.DefaultLayout(),
		},
		log:    slog.Default(),
		stdout: os.Stderr,
		stderr: os.Stderr,
	}
}

// FromEnv returns a Builder seeded from environ, in os.Environ form. It reads
// HOST, TARGET, OUT_DIR, PROFILE and NUM_JOBS as set for cargo build scripts,
// and the LLVMSRC_ overrides.
func FromEnv(environ []string) (*Builder, error) {
	e, err := env.Parse(environ)
	if err != nil {
		return nil, err
	}
	b := New()
	b.Host(e.Host).Target(e.Target).Jobs(e.Jobs)
	if e.Profile != "" {
		b.Profile(env.BuildType(e.Profile))
	}
	if e.OutDir != "" {
		b.OutDir(e.OutDir)
	}
	if e.LLVM.CacheDir != "" {
		b.CacheDir(e.LLVM.CacheDir)
	}
	if e.LLVM.Remote != "" {
		b.Remote(e.LLVM.Remote)
	}
	if e.LLVM.Revision != "" {
		b.Revision(e.LLVM.Revision)
	}
	b.Components(e.LLVM.Components...).Targets(e.LLVM.Targets...)
	b.Git(e.LLVM.Git).CMake(e.LLVM.CMake).Ninja(e.LLVM.Ninja)
	if e.LLVM.Generator != "" {
		b.Generator(e.LLVM.Generator)
	}
	b.Verbose(e.LLVM.Verbose)
	return b, nil
}

// Config returns a snapshot of the configuration. Later setter calls do not
// affect it.
func (b *Builder) Config() Config {
	return b.cfg.clone()
}

// Remote sets the git URL of the LLVM monorepo.
func (b *Builder) Remote(url string) *Builder {
	b.cfg.Remote = url
	return b
}

// Revision sets the tag, branch or commit to build.
func (b *Builder) Revision(rev string) *Builder {
	b.cfg.Revision = rev
	return b
}

// CacheDir sets the cache root holding sources and build outputs.
func (b *Builder) CacheDir(dir string) *Builder {
	b.cfg.CacheDir = dir
	return b
}

// OutDir sets the cache root to dir/llvm-build.
func (b *Builder) OutDir(dir string) *Builder {
	b.cfg.CacheDir = filepath.Join(dir, "llvm-build")
	return b
}

// Host sets the host triple.
func (b *Builder) Host(triple string) *Builder {
	b.cfg.Host = triple
	return b
}

// Target sets the default target triple.
func (b *Builder) Target(triple string) *Builder {
	b.cfg.Target = triple
	return b
}

// Profile sets the CMake build type, e.g. "Release" or "Debug".
func (b *Builder) Profile(profile string) *Builder {
	b.cfg.Profile = profile
	return b
}

// Components sets the LLVM projects to enable, e.g. "clang", "lld".
func (b *Builder) Components(names ...string) *Builder {
	b.cfg.Components = slices.Clone(names)
	return b
}

// Targets sets the LLVM code generation targets, e.g. "X86", "AArch64".
func (b *Builder) Targets(names ...string) *Builder {
	b.cfg.Targets = slices.Clone(names)
	return b
}

// Option adds a configure option. A key starting with "-" is passed to
// cmake as is; any other key becomes -Dkey=value.
func (b *Builder) Option(key, value string) *Builder {
	if b.cfg.Options == nil {
		b.cfg.Options = map[string]string{}
	}
	b.cfg.Options[key] = value
	return b
}

// Jobs sets the build parallelism. Zero uses the number of logical CPUs.
func (b *Builder) Jobs(n int) *Builder {
	b.cfg.Jobs = n
	return b
}

// Generator sets the CMake generator, e.g. "Unix Makefiles". Ninja is
// looked up only for the Ninja generators.
func (b *Builder) Generator(name string) *Builder {
	b.cfg.Generator = name
	return b
}

func (b *Builder) Git(path string) *Builder {
	b.cfg.Toolchain.Git = path
	return b
}

func (b *Builder) CMake(path string) *Builder {
	b.cfg.Toolchain.CMake = path
	return b
}

func (b *Builder) Ninja(path string) *Builder {
	b.cfg.Toolchain.Ninja = path
	return b
}

// LockTimeout sets how long Build waits for the cache lock before failing
// with ErrContendedBuild.
func (b *Builder) LockTimeout(d time.Duration) *Builder {
	b.cfg.LockTimeout = d
	return b
}

// Layout sets where artifacts are looked up in the install prefix.
func (b *Builder) Layout(l Layout) *Builder {
	b.cfg.Layout = l
	return b
}

func (b *Builder) Logger(log *slog.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

// Verbose streams the output of cmake and the build tool to stderr.
func (b *Builder) Verbose(v bool) *Builder {
	b.cfg.Verbose = v
	return b
}

// Output sets where tool output goes when Verbose is on.
func (b *Builder) Output(stdout, stderr io.Writer) *Builder {
	b.stdout, b.stderr = stdout, stderr
	return b
}
