package llvmsrc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/llvmsrc/internal/artifact"
	"github.com/goplus/llvmsrc/internal/build"
	"github.com/goplus/llvmsrc/internal/env"
	"github.com/goplus/llvmsrc/internal/source"
	"github.com/kballard/go-shellquote"
)

// Layout says where Build looks for artifacts inside the install prefix.
// A nil Required list is derived from the configured components.
type Layout = artifact.Layout

// Library is a static or shared library produced by the build.
type Library = artifact.Library

// DefaultLayout is the layout of a stock LLVM install: lib, include and bin.
func DefaultLayout() Layout {
	return artifact.DefaultLayout()
}

// Artifacts describes a finished build. It is immutable; accessors return
// copies.
type Artifacts struct {
	prefix      string
	libraries   []Library
	libDirs     []string
	includeDirs []string
	tools       []string
	version     string
	revision    string
	commit      string
	configHash  string
}

func newArtifacts(r *artifact.Result, tree *source.Tree, out *build.Output) *Artifacts {
	return &Artifacts{
		prefix:      r.Prefix,
		libraries:   r.Libraries,
		libDirs:     r.LibDirs,
		includeDirs: r.IncludeDirs,
		tools:       r.Tools,
		version:     r.Version,
		revision:    tree.Revision,
		commit:      tree.Commit,
		configHash:  out.ConfigHash,
	}
}

// Prefix is the install prefix.
func (a *Artifacts) Prefix() string { return a.prefix }

// Include returns the first include directory.
func (a *Artifacts) Include() string { return first(a.includeDirs) }

// Lib returns the first library directory.
func (a *Artifacts) Lib() string { return first(a.libDirs) }

// Libs returns the link names of all libraries, each once, in order.
func (a *Artifacts) Libs() []string {
	var names []string
	for _, lib := range a.libraries {
		if !slices.Contains(names, lib.Name) {
			names = append(names, lib.Name)
		}
	}
	return names
}

func (a *Artifacts) Libraries() []Library  { return slices.Clone(a.libraries) }
func (a *Artifacts) LibDirs() []string     { return slices.Clone(a.libDirs) }
func (a *Artifacts) IncludeDirs() []string { return slices.Clone(a.includeDirs) }
func (a *Artifacts) Tools() []string       { return slices.Clone(a.tools) }
func (a *Artifacts) Version() string       { return a.version }
func (a *Artifacts) Revision() string      { return a.revision }
func (a *Artifacts) Commit() string        { return a.commit }
func (a *Artifacts) ConfigHash() string    { return a.configHash }

// Tool returns the path of the named tool, e.g. "llvm-config".
func (a *Artifacts) Tool(name string) (string, bool) {
	for _, t := range a.tools {
		base := filepath.Base(t)
		if base == name || strings.TrimSuffix(base, filepath.Ext(base)) == name {
			return t, true
		}
	}
	return "", false
}

// A Format writes artifacts in the syntax a consumer expects.
type Format func(w io.Writer, a *Artifacts) error

// WriteMetadata writes a in format f.
func (a *Artifacts) WriteMetadata(w io.Writer, f Format) error {
	bw := bufio.NewWriter(w)
	if err := f(bw, a); err != nil {
		return err
	}
	return bw.Flush()
}

// PrintCargoMetadata writes cargo build script directives to stdout.
func (a *Artifacts) PrintCargoMetadata() error {
	return a.WriteMetadata(os.Stdout, CargoFormat)
}

// CargoFormat emits cargo build script directives: search paths, link
// libraries, include and lib dirs for dependents, and the variables that
// should trigger a rebuild.
func CargoFormat(w io.Writer, a *Artifacts) error {
	p := printer{w: w}
	p.printf("cargo:include=%s\n", a.Include())
	p.printf("cargo:lib=%s\n", a.Lib())
	if a.version != "" {
		p.printf("cargo:version=%s\n", strings.TrimPrefix(a.version, "v"))
	}
	for _, dir := range a.libDirs {
		p.printf("cargo:rustc-link-search=native=%s\n", dir)
	}
	for _, lib := range linkLibraries(a.libraries) {
		kind := "dylib"
		if lib.Static {
			kind = "static"
		}
		p.printf("cargo:rustc-link-lib=%s=%s\n", kind, lib.Name)
	}
	for _, v := range env.Vars {
		p.printf("cargo:rerun-if-env-changed=%s\n", v)
	}
	return p.err
}

// EnvFormat emits LLVM_* assignments quoted for a POSIX shell, so the output
// can be eval'ed. Lists of paths are joined with the OS path list separator.
func EnvFormat(w io.Writer, a *Artifacts) error {
	sep := string(filepath.ListSeparator)
	p := printer{w: w}
	for _, kv := range [][2]string{
		{"LLVM_PREFIX", a.prefix},
		{"LLVM_VERSION", strings.TrimPrefix(a.version, "v")},
		{"LLVM_REVISION", a.revision},
		{"LLVM_COMMIT", a.commit},
		{"LLVM_INCLUDE_DIRS", strings.Join(a.includeDirs, sep)},
		{"LLVM_LIB_DIRS", strings.Join(a.libDirs, sep)},
		{"LLVM_LIBS", strings.Join(a.Libs(), " ")},
		{"LLVM_TOOLS", strings.Join(a.tools, sep)},
	} {
		p.printf("%s=%s\n", kv[0], shellquote.Join(kv[1]))
	}
	return p.err
}

// linkLibraries keeps one entry per link name, the static one when both a
// static and a shared library exist.
func linkLibraries(libs []Library) []Library {
	var ret []Library
	index := map[string]int{}
	for _, lib := range libs {
		i, ok := index[lib.Name]
		if !ok {
			index[lib.Name] = len(ret)
			ret = append(ret, lib)
			continue
		}
		if lib.Static && !ret[i].Static {
			ret[i] = lib
		}
	}
	return ret
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
