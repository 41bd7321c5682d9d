// Package cmake wraps the cmake configure/build/install workflow.
package cmake

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/goplus/llvmsrc/internal/proc"
	"github.com/goplus/llvmsrc/pkgs/buildsys"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds with chainable configuration.
type CMake struct {
	runner     proc.Runner
	cmake      string
	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	jobs       int
	defines    map[string]defineValue
	extraArgs  []string
	env        map[string]string
	stdout     io.Writer
	stderr     io.Writer
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New returns a CMake configuring sourceDir into buildDir and installing to
// installDir. A nil runner uses proc.NewExec().
func New(runner proc.Runner, sourceDir, buildDir, installDir string) *CMake {
	if runner == nil {
		runner = proc.NewExec()
	}
	return &CMake{
		runner:     runner,
		cmake:      "cmake",
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		defines:    map[string]defineValue{},
		env:        map[string]string{},
	}
}

func (c *CMake) Source(dir string) {
	c.sourceDir = dir
}

func (c *CMake) InstallDir(dir string) {
	c.installDir = dir
}

// Program sets the cmake executable.
func (c *CMake) Program(path string) *CMake {
	if path != "" {
		c.cmake = path
	}
	return c
}

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) *CMake {
	c.generator = name
	return c
}

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) *CMake {
	c.buildType = name
	return c
}

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) *CMake {
	c.toolchain = path
	return c
}

// Jobs sets the build parallelism; zero leaves it to the generator.
func (c *CMake) Jobs(n int) *CMake {
	c.jobs = n
	return c
}

// Output streams the tools' stdout and stderr to the given writers.
func (c *CMake) Output(stdout, stderr io.Writer) *CMake {
	c.stdout, c.stderr = stdout, stderr
	return c
}

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) *CMake {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
	return c
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) *CMake {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
	return c
}

// DefineRaw adds an untyped -D<key>=<value> definition and lets CMake infer
// the type.
func (c *CMake) DefineRaw(key, value string) *CMake {
	c.defines[key] = defineValue{value: value}
	return c
}

// Arg appends raw configure arguments after the definitions.
func (c *CMake) Arg(args ...string) *CMake {
	c.extraArgs = append(c.extraArgs, args...)
	return c
}

func (c *CMake) Env(key, value string) {
	c.env[key] = value
}

// ConfigureArgs returns the arguments Configure passes to cmake.
func (c *CMake) ConfigureArgs(args ...string) []string {
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.installDir != "" {
		c.Define("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.toolchain != "" {
		c.defineDefault("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.defineDefault("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, c.extraArgs...)
	return append(cmakeArgs, args...)
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	return c.run(ctx, c.ConfigureArgs(args...))
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.jobs > 0 {
		cmakeArgs = append(cmakeArgs, "--parallel", strconv.Itoa(c.jobs))
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--install", c.buildDir}
	if c.installDir != "" {
		cmakeArgs = append(cmakeArgs, "--prefix", c.installDir)
	}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Manifest returns the build file the generator writes into the build dir.
func (c *CMake) Manifest() string {
	switch c.generator {
	case "Ninja", "Ninja Multi-Config":
		return filepath.Join(c.buildDir, "build.ninja")
	case "", "Unix Makefiles", "MinGW Makefiles", "MSYS Makefiles", "NMake Makefiles":
		return filepath.Join(c.buildDir, "Makefile")
	}
	return filepath.Join(c.buildDir, "CMakeCache.txt")
}

// OutputDir returns installDir if set, otherwise buildDir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) run(ctx context.Context, args []string) error {
	_, err := c.runner.Run(ctx, &proc.Cmd{
		Path:   c.cmake,
		Args:   args,
		Env:    c.env,
		Stdout: c.stdout,
		Stderr: c.stderr,
	})
	return err
}

// defineDefault sets key unless a definition for it already exists.
func (c *CMake) defineDefault(key, value string) {
	if _, ok := c.defines[key]; !ok {
		c.Define(key, value)
	}
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		if d.typeName != "" {
			args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
			continue
		}
		args = append(args, "-D"+k+"="+d.value)
	}
	return args
}
