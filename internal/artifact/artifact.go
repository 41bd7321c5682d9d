// Package artifact discovers libraries, headers and tools in an LLVM install
// prefix.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrMissingExpectedArtifact is matched by every *MissingError.
var ErrMissingExpectedArtifact = errors.New("missing expected artifact")

// MissingError names a required library that is not in the install prefix.
type MissingError struct {
	Name   string
	Prefix string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %v: no library named %s*", e.Prefix, ErrMissingExpectedArtifact, e.Name)
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissingExpectedArtifact
}

// componentLibraries maps an LLVM project to the prefix its libraries share.
var componentLibraries = map[string]string{
	"clang": "clang",
	"lld":   "lld",
	"lldb":  "lldb",
	"mlir":  "MLIR",
	"polly": "Polly",
	"flang": "Fortran",
}

// Required returns the library name prefixes a build of components must
// produce. LLVMSupport is always required.
func Required(components []string) []string {
	req := []string{"LLVMSupport"}
	for _, c := range components {
		if p, ok := componentLibraries[strings.ToLower(c)]; ok {
			req = append(req, p)
		}
	}
	return req
}

// Layout says where in the install prefix to look.
type Layout struct {
	LibDirs     []string
	IncludeDirs []string
	BinDirs     []string
	// Required library name prefixes; see Required.
	Required []string
}

// DefaultLayout is the layout of a stock LLVM install.
func DefaultLayout() Layout {
	return Layout{
		LibDirs:     []string{"lib"},
		IncludeDirs: []string{"include"},
		BinDirs:     []string{"bin"},
	}
}

// Library is a static or shared library found in a lib dir.
type Library struct {
	Path   string
	Name   string // link name: no "lib" prefix, no extension
	Static bool
}

// Result is everything found in one install prefix. All slices are sorted.
type Result struct {
	Prefix      string
	Libraries   []Library
	LibDirs     []string
	IncludeDirs []string
	Tools       []string
	Version     string // semver with a "v" prefix, or empty if unknown
}

// Locate scans prefix according to layout. Only the configured directories
// are read, one level deep. revision is the fallback for the version when
// the install does not record one.
func Locate(prefix string, layout Layout, revision string) (*Result, error) {
	r := &Result{Prefix: prefix}

	for _, d := range layout.LibDirs {
		dir := filepath.Join(prefix, d)
		entries, err := readDir(dir)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			continue
		}
		r.LibDirs = append(r.LibDirs, dir)
		for _, e := range entries {
			name, static, ok := libraryName(e.Name())
			if !ok || !isFile(dir, e) {
				continue
			}
			r.Libraries = append(r.Libraries, Library{
				Path:   filepath.Join(dir, e.Name()),
				Name:   name,
				Static: static,
			})
		}
	}
	for _, d := range layout.IncludeDirs {
		dir := filepath.Join(prefix, d)
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			r.IncludeDirs = append(r.IncludeDirs, dir)
		}
	}
	for _, d := range layout.BinDirs {
		dir := filepath.Join(prefix, d)
		entries, err := readDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if isExecutable(dir, e) {
				r.Tools = append(r.Tools, filepath.Join(dir, e.Name()))
			}
		}
	}

	sort.Slice(r.Libraries, func(i, j int) bool { return r.Libraries[i].Path < r.Libraries[j].Path })
	sort.Strings(r.LibDirs)
	sort.Strings(r.IncludeDirs)
	sort.Strings(r.Tools)

	for _, name := range layout.Required {
		if !r.hasLibrary(name) {
			return nil, &MissingError{Name: name, Prefix: prefix}
		}
	}

	r.Version = installedVersion(prefix, layout.LibDirs)
	if r.Version == "" {
		r.Version = VersionFromTag(revision)
	}
	return r, nil
}

func (r *Result) hasLibrary(prefix string) bool {
	for _, lib := range r.Libraries {
		if strings.HasPrefix(lib.Name, prefix) {
			return true
		}
	}
	return false
}

// readDir returns nil entries for a directory that does not exist.
func readDir(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

// libraryName returns the link name of a library file name.
func libraryName(file string) (name string, static bool, ok bool) {
	switch ext := filepath.Ext(file); ext {
	case ".a", ".lib":
		name, static = strings.TrimSuffix(file, ext), true
	case ".so", ".dylib", ".dll":
		name = strings.TrimSuffix(file, ext)
	default:
		// libfoo.so.16
		i := strings.Index(file, ".so.")
		if i <= 0 {
			return "", false, false
		}
		name = file[:i]
	}
	if strings.HasSuffix(file, ".lib") || strings.HasSuffix(file, ".dll") {
		return name, static, name != ""
	}
	name = strings.TrimPrefix(name, "lib")
	return name, static, name != ""
}

func isFile(dir string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && fi.Mode().IsRegular()
}

func isExecutable(dir string, e fs.DirEntry) bool {
	if !isFile(dir, e) {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(e.Name()), ".exe")
	}
	fi, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && fi.Mode().Perm()&0o111 != 0
}
