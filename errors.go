package llvmsrc

import (
	"fmt"

	"github.com/goplus/llvmsrc/internal/artifact"
	"github.com/goplus/llvmsrc/internal/build"
	"github.com/goplus/llvmsrc/internal/build/lockedfile"
	"github.com/goplus/llvmsrc/internal/proc"
	"github.com/goplus/llvmsrc/internal/source"
)

// Source acquisition errors.
var (
	ErrNetworkFailure   = source.ErrNetworkFailure
	ErrRevisionNotFound = source.ErrRevisionNotFound
	ErrCorruptLocalTree = source.ErrCorruptLocalTree
)

// Build errors.
var (
	ErrToolMissing    = proc.ErrToolMissing
	ErrCancelled      = proc.ErrCancelled
	ErrContendedBuild = lockedfile.ErrContended

	// ErrReservedOption rejects an Option that sets CMAKE_INSTALL_PREFIX.
	ErrReservedOption = build.ErrReservedOption
)

// ErrMissingExpectedArtifact is matched by every *MissingArtifactError.
var ErrMissingExpectedArtifact = artifact.ErrMissingExpectedArtifact

// ToolFailedError reports a tool that exited with a nonzero status. It
// carries the exit code and the tail of stderr.
type ToolFailedError = proc.ExitError

// MissingArtifactError names a required library the build did not produce.
type MissingArtifactError = artifact.MissingError

// Stage is a step of Build.
type Stage string

const (
	StageLock    Stage = "lock"
	StageAcquire Stage = "acquire"
	StageBuild   Stage = "build"
	StageLocate  Stage = "locate"
)

// StageError wraps every error returned by Build with the stage that failed
// and the directory it was working in.
type StageError struct {
	Stage      Stage
	ConfigHash string // empty before the source is acquired
	Path       string
	Err        error
}

func (e *StageError) Error() string {
	if e.ConfigHash != "" {
		return fmt.Sprintf("llvmsrc: %s %s (config %.16s): %v", e.Stage, e.Path, e.ConfigHash, e.Err)
	}
	return fmt.Sprintf("llvmsrc: %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
