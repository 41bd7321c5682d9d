package buildsys

import "context"

// BuildSystem captures shared capabilities of build-file generators (CMake, etc).
// It keeps the common lifecycle and env setup; implementations add their own extras.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	InstallDir(dir string)

	// Environment helper.
	Env(key, val string)

	// Lifecycle. Each step runs an external process bound to ctx.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Manifest is the file the configure step generates; the build step
	// cannot run without it.
	Manifest() string

	// Where artifacts land.
	OutputDir() string
}
