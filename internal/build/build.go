package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goplus/llvmsrc/internal/proc"
	"github.com/goplus/llvmsrc/internal/source"
	"github.com/goplus/llvmsrc/pkgs/buildsys"
	"github.com/goplus/llvmsrc/pkgs/buildsys/cmake"
)

// DefaultGenerator is the CMake generator used when Spec.Generator is empty.
const DefaultGenerator = "Ninja"

// ErrReservedOption is returned for a configure option that would move the
// install prefix away from the build output.
var ErrReservedOption = errors.New("reserved configure option")

// Output is a finished build directory.
type Output struct {
	Dir        string
	InstallDir string
	ConfigHash string
}

// Error reports a failed build step with the directory and config hash
// needed to diagnose it.
type Error struct {
	Step       string // configure, build, install or prepare
	Dir        string
	ConfigHash string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (config %s): %v", e.Step, e.Dir, e.ConfigHash, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Builder runs the external generator and build tool out of tree, one
// BuildOutput per config hash under root.
type Builder struct {
	root     string
	runner   proc.Runner
	jobs     int
	stdout   io.Writer
	stderr   io.Writer
	lookPath func(string) (string, error)
	log      *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithRunner sets the process runner.
func WithRunner(r proc.Runner) Option {
	return func(b *Builder) { b.runner = r }
}

// WithJobs sets the build parallelism passed to the build tool.
func WithJobs(n int) Option {
	return func(b *Builder) { b.jobs = n }
}

// WithOutput streams tool output to stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Builder) { b.stdout, b.stderr = stdout, stderr }
}

// WithLookPath overrides how tool executables are located.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(b *Builder) { b.lookPath = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

func NewBuilder(root string, opts ...Option) *Builder {
	b := &Builder{
		root:     root,
		runner:   proc.NewExec(),
		lookPath: exec.LookPath,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "build")
	return b
}

// Dir returns the BuildOutput directory for a config hash.
func (b *Builder) Dir(configHash string) string {
	if len(configHash) > dirHashLen {
		configHash = configHash[:dirHashLen]
	}
	return filepath.Join(b.root, configHash)
}

// Build produces the BuildOutput for spec from tree. An output whose marker
// carries the same config hash is returned without running anything. Any
// other output is wiped and rebuilt from scratch; partial results are never
// reused.
func (b *Builder) Build(ctx context.Context, tree *source.Tree, spec *Spec) (*Output, error) {
	hash, err := spec.Hash()
	if err != nil {
		return nil, err
	}
	dir := b.Dir(hash)
	out := &Output{
		Dir:        dir,
		InstallDir: filepath.Join(dir, "install"),
		ConfigHash: hash,
	}

	if m, err := loadMarker(dir); err == nil && m.ConfigHash == hash {
		b.log.Debug("build output up to date", "dir", dir, "built", m.BuildTime)
		return out, nil
	}

	wrap := func(step string, err error) error {
		return &Error{Step: step, Dir: dir, ConfigHash: hash, Err: err}
	}

	gen, err := b.generator(tree, spec, out)
	if err != nil {
		return nil, wrap("prepare", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, wrap("prepare", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrap("prepare", err)
	}

	b.log.Info("building LLVM", "revision", spec.Revision, "commit", spec.Commit, "dir", dir, "jobs", b.jobs)
	start := time.Now()

	if err := gen.Configure(ctx); err != nil {
		return nil, wrap("configure", err)
	}
	if err := b.compile(ctx, gen); err != nil {
		return nil, wrap("build", err)
	}
	if err := gen.Install(ctx); err != nil {
		return nil, wrap("install", err)
	}

	m := &marker{
		ConfigHash: hash,
		Spec:       *spec,
		BuildTime:  time.Now(),
		Duration:   time.Since(start),
	}
	if err := saveMarker(dir, m); err != nil {
		return nil, wrap("install", err)
	}
	b.log.Info("build finished", "dir", dir, "duration", m.Duration.Round(time.Second))
	return out, nil
}

// compile runs the build step. If it fails because the generated manifest is
// gone, the build files are regenerated once and the step retried.
func (b *Builder) compile(ctx context.Context, gen buildsys.BuildSystem) error {
	err := gen.Build(ctx)
	if err == nil || errors.Is(err, proc.ErrCancelled) {
		return err
	}
	if _, statErr := os.Stat(gen.Manifest()); !os.IsNotExist(statErr) {
		return err
	}
	b.log.Warn("build manifest missing, regenerating", "manifest", gen.Manifest(), "err", err)
	if err := gen.Configure(ctx); err != nil {
		return err
	}
	return gen.Build(ctx)
}

func (b *Builder) generator(tree *source.Tree, spec *Spec, out *Output) (buildsys.BuildSystem, error) {
	generator := spec.Generator
	if generator == "" {
		generator = DefaultGenerator
	}
	cmakePath := spec.CMake
	if cmakePath == "" {
		cmakePath = "cmake"
	}
	if _, err := b.lookPath(cmakePath); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", cmakePath, proc.ErrToolMissing, err)
	}

	if err := CheckOptions(spec.Options); err != nil {
		return nil, err
	}

	c := cmake.New(b.runner, filepath.Join(tree.Dir, "llvm"), filepath.Join(out.Dir, "obj"), out.InstallDir)
	c.Program(cmakePath).Generator(generator).BuildType(spec.Profile).Jobs(b.jobs)
	c.Output(b.stdout, b.stderr)

	if strings.HasPrefix(generator, "Ninja") {
		ninja := spec.Ninja
		if ninja == "" {
			ninja = "ninja"
		}
		path, err := b.lookPath(ninja)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", ninja, proc.ErrToolMissing, err)
		}
		c.Define("CMAKE_MAKE_PROGRAM", path)
	}

	c.DefineBool("LLVM_INCLUDE_TESTS", false)
	c.DefineBool("LLVM_INCLUDE_EXAMPLES", false)
	c.DefineBool("LLVM_INCLUDE_BENCHMARKS", false)
	if len(spec.Components) > 0 {
		c.Define("LLVM_ENABLE_PROJECTS", strings.Join(spec.Components, ";"))
	}
	if len(spec.Targets) > 0 {
		c.Define("LLVM_TARGETS_TO_BUILD", strings.Join(spec.Targets, ";"))
	}
	if spec.Host != "" {
		c.Define("LLVM_HOST_TRIPLE", spec.Host)
	}
	if spec.Target != "" {
		c.Define("LLVM_DEFAULT_TARGET_TRIPLE", spec.Target)
	}

	// Pass-through options come last so they override the defaults above.
	keys := make([]string, 0, len(spec.Options))
	for k := range spec.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := spec.Options[k]
		switch {
		case k == "CMAKE_BUILD_TYPE":
			c.BuildType(v)
		case strings.HasPrefix(k, "-") && v == "":
			c.Arg(k)
		case strings.HasPrefix(k, "-"):
			c.Arg(k + "=" + v)
		default:
			c.DefineRaw(k, v)
		}
	}

	if b.jobs > 0 {
		c.Env("NUM_JOBS", strconv.Itoa(b.jobs))
	}
	return c, nil
}

// CheckOptions rejects pass-through options the build manages itself.
func CheckOptions(options map[string]string) error {
	for k := range options {
		if defineName(k) == "CMAKE_INSTALL_PREFIX" {
			return fmt.Errorf("%s: %w", k, ErrReservedOption)
		}
	}
	return nil
}

// defineName returns the cache variable an option sets: the key itself, or
// NAME for a raw "-DNAME[:TYPE]" argument. Other raw arguments yield "".
func defineName(key string) string {
	if !strings.HasPrefix(key, "-") {
		return key
	}
	name, ok := strings.CutPrefix(key, "-D")
	if !ok {
		return ""
	}
	name, _, _ = strings.Cut(name, ":")
	name, _, _ = strings.Cut(name, "=")
	return name
}
