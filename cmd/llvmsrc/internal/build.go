package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goplus/llvmsrc"
	"github.com/spf13/cobra"
)

var (
	buildComponents  []string
	buildTargets     []string
	buildOptions     []string
	buildHost        string
	buildTarget      string
	buildProfile     string
	buildJobs        int
	buildGit         string
	buildCMake       string
	buildNinja       string
	buildGenerator   string
	buildFormat      string
	buildLockTimeout time.Duration
)

var buildCmd = &cobra.Command{
	Use:   "build [revision]",
	Short: "Build LLVM at a revision",
	Long: `Build fetches LLVM at revision (a tag, branch or commit), builds and installs it,
and prints the artifacts. Settings not given on the command line come from
HOST, TARGET, OUT_DIR, PROFILE, NUM_JOBS and the LLVMSRC_* variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringSliceVarP(&buildComponents, "component", "c", nil, "LLVM projects to enable, e.g. clang,lld")
	flags.StringSliceVar(&buildTargets, "targets", nil, "LLVM targets to build, e.g. X86,AArch64")
	flags.StringArrayVarP(&buildOptions, "define", "D", nil, "Extra configure option KEY=VALUE")
	flags.StringVar(&buildHost, "host", "", "Host triple")
	flags.StringVar(&buildTarget, "target", "", "Default target triple")
	flags.StringVar(&buildProfile, "profile", "", "CMake build type (default Release)")
	flags.IntVarP(&buildJobs, "jobs", "j", 0, "Build parallelism (default: logical CPUs)")
	flags.StringVar(&buildGit, "git", "", "git executable")
	flags.StringVar(&buildCMake, "cmake", "", "cmake executable")
	flags.StringVar(&buildNinja, "ninja", "", "ninja executable")
	flags.StringVarP(&buildGenerator, "generator", "G", "", "CMake generator (default Ninja)")
	flags.StringVarP(&buildFormat, "format", "f", "env", "Output format: env or cargo")
	flags.DurationVar(&buildLockTimeout, "lock-timeout", llvmsrc.DefaultLockTimeout, "How long to wait for another build holding the cache")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	format, err := formatByName(buildFormat)
	if err != nil {
		return err
	}
	options, err := parseOptions(buildOptions)
	if err != nil {
		return err
	}

	b, err := newBuilder()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		b.Revision(args[0])
	}
	flags := cmd.Flags()
	if flags.Changed("component") {
		b.Components(buildComponents...)
	}
	if flags.Changed("targets") {
		b.Targets(buildTargets...)
	}
	if flags.Changed("host") {
		b.Host(buildHost)
	}
	if flags.Changed("target") {
		b.Target(buildTarget)
	}
	if flags.Changed("profile") {
		b.Profile(buildProfile)
	}
	if flags.Changed("jobs") {
		b.Jobs(buildJobs)
	}
	if flags.Changed("git") {
		b.Git(buildGit)
	}
	if flags.Changed("cmake") {
		b.CMake(buildCMake)
	}
	if flags.Changed("ninja") {
		b.Ninja(buildNinja)
	}
	if flags.Changed("generator") {
		b.Generator(buildGenerator)
	}
	for _, kv := range options {
		b.Option(kv[0], kv[1])
	}
	b.LockTimeout(buildLockTimeout)
	b.Output(cmd.ErrOrStderr(), cmd.ErrOrStderr())

	a, err := b.Build(cmd.Context())
	if err != nil {
		return err
	}
	return a.WriteMetadata(cmd.OutOrStdout(), format)
}

// newBuilder seeds a Builder from the environment and the persistent flags.
func newBuilder() (*llvmsrc.Builder, error) {
	b, err := llvmsrc.FromEnv(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cacheDir != "" {
		b.CacheDir(cacheDir)
	}
	if verbose {
		b.Verbose(true)
	}
	return b.Logger(logger), nil
}

func formatByName(name string) (llvmsrc.Format, error) {
	switch name {
	case "env":
		return llvmsrc.EnvFormat, nil
	case "cargo":
		return llvmsrc.CargoFormat, nil
	}
	return nil, fmt.Errorf("unknown format %q (want env or cargo)", name)
}

// parseOptions splits KEY=VALUE pairs. A bare flag such as -Wno-dev has an
// empty value.
func parseOptions(list []string) ([][2]string, error) {
	var ret [][2]string
	for _, s := range list {
		key, value, ok := strings.Cut(s, "=")
		if key == "" || (!ok && !strings.HasPrefix(key, "-")) {
			return nil, fmt.Errorf("invalid option %q, want KEY=VALUE", s)
		}
		ret = append(ret, [2]string{key, value})
	}
	return ret, nil
}
