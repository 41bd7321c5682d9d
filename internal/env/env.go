// Package env reads the host environment: cache location, CPU count and the
// variables a parent build process sets.
package env

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/shirou/gopsutil/cpu"
)

// Config is the environment seen by a build script.
type Config struct {
	Host    string `env:"HOST"`
	Target  string `env:"TARGET"`
	OutDir  string `env:"OUT_DIR"`
	Profile string `env:"PROFILE"`
	Jobs    int    `env:"NUM_JOBS"`

	LLVM LLVMConfig `envPrefix:"LLVMSRC_"`
}

// LLVMConfig holds the LLVMSRC_ overrides.
type LLVMConfig struct {
	CacheDir   string   `env:"CACHE_DIR"`
	Remote     string   `env:"REMOTE"`
	Revision   string   `env:"REVISION"`
	Components []string `env:"COMPONENTS" envSeparator:","`
	Targets    []string `env:"TARGETS" envSeparator:","`
	Git        string   `env:"GIT"`
	CMake      string   `env:"CMAKE"`
	Ninja      string   `env:"NINJA"`
	Generator  string   `env:"GENERATOR"`
	Verbose    bool     `env:"VERBOSE"`
}

// Vars lists every variable Parse reads.
var Vars = []string{
	"HOST", "TARGET", "OUT_DIR", "PROFILE", "NUM_JOBS",
	"LLVMSRC_CACHE_DIR", "LLVMSRC_REMOTE", "LLVMSRC_REVISION",
	"LLVMSRC_COMPONENTS", "LLVMSRC_TARGETS",
	"LLVMSRC_GIT", "LLVMSRC_CMAKE", "LLVMSRC_NINJA", "LLVMSRC_GENERATOR",
	"LLVMSRC_VERBOSE",
}

// Parse parses environ, as returned by os.Environ.
func Parse(environ []string) (*Config, error) {
	var cfg Config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	cfg.LLVM.Components = trimAll(cfg.LLVM.Components)
	cfg.LLVM.Targets = trimAll(cfg.LLVM.Targets)
	return &cfg, nil
}

func trimAll(list []string) []string {
	var ret []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			ret = append(ret, s)
		}
	}
	return ret
}

// BuildType maps a cargo PROFILE to a CMake build type. Values other than
// debug and release pass through.
func BuildType(profile string) string {
	switch strings.ToLower(profile) {
	case "debug":
		return "Debug"
	case "release":
		return "Release"
	}
	return profile
}

// WorkDir is the default cache root.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, "llvmsrc"), nil
}

// Jobs returns the number of logical CPUs.
func Jobs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
