package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goplus/llvmsrc/internal/proc"
)

// fakeRunner pretends to be cmake. Configure writes the manifest, install
// writes a minimal prefix. Failures are injected per step.
type fakeRunner struct {
	mu         sync.Mutex
	calls      []string
	fail       map[string]error // keyed by step: configure, build, install
	failOnce   map[string]error
	noManifest bool
}

func (r *fakeRunner) Run(ctx context.Context, c *proc.Cmd) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(c.Args, " "))
	step := stepOf(c.Args)
	if err := r.fail[step]; err != nil {
		return "", err
	}
	if err := r.failOnce[step]; err != nil {
		delete(r.failOnce, step)
		return "", err
	}
	switch step {
	case "configure":
		if r.noManifest {
			return "", nil
		}
		obj := argAfter(c.Args, "-B")
		return "", os.WriteFile(filepath.Join(obj, "build.ninja"), nil, 0o644)
	case "install":
		lib := filepath.Join(argAfter(c.Args, "--prefix"), "lib")
		if err := os.MkdirAll(lib, 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(filepath.Join(lib, "libLLVMSupport.a"), nil, 0o644)
	}
	return "", nil
}

func (r *fakeRunner) steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]string, len(r.calls))
	for i, c := range r.calls {
		ret[i] = stepOf(strings.Fields(c))
	}
	return ret
}

func stepOf(args []string) string {
	if len(args) == 0 {
		return ""
	}
	switch args[0] {
	case "--build":
		return "build"
	case "--install":
		return "install"
	}
	return "configure"
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func lookPathOK(name string) (string, error) {
	return "/usr/bin/" + filepath.Base(name), nil
}
