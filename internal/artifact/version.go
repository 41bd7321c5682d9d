package artifact

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// TagPrefix is the prefix of LLVM release tags, e.g. llvmorg-16.0.0.
const TagPrefix = "llvmorg-"

var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(.*)$`)

// configVersionRe matches set(LLVM_PACKAGE_VERSION 16.0.0) in LLVMConfig.cmake.
var configVersionRe = regexp.MustCompile(`^\s*set\(\s*LLVM_PACKAGE_VERSION\s+"?([^")\s]+)"?\s*\)`)

// Canonical turns an LLVM version string into a semver version. A suffix
// after the patch number becomes a prerelease: "17.0.0git" is "v17.0.0-git".
// It returns "" when v is not a version.
func Canonical(v string) string {
	m := versionRe.FindStringSubmatch(strings.TrimPrefix(v, "v"))
	if m == nil {
		return ""
	}
	ret := "v" + m[1] + "." + m[2] + "." + m[3]
	if pre := strings.TrimLeft(m[4], "-"); pre != "" {
		ret += "-" + pre
	}
	if !semver.IsValid(ret) {
		return ""
	}
	return semver.Canonical(ret)
}

// VersionFromTag returns the version of an llvmorg- release tag, or "" for
// anything else.
func VersionFromTag(tag string) string {
	if !strings.HasPrefix(tag, TagPrefix) {
		return ""
	}
	return Canonical(strings.TrimPrefix(tag, TagPrefix))
}

// SortTags returns the release tags among tags, newest first. Tags that do
// not carry a version are dropped.
func SortTags(tags []string) []string {
	var ret []string
	for _, t := range tags {
		if VersionFromTag(t) != "" {
			ret = append(ret, t)
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return semver.Compare(VersionFromTag(ret[i]), VersionFromTag(ret[j])) > 0
	})
	return ret
}

// installedVersion reads LLVM_PACKAGE_VERSION from the CMake package config
// under the lib dirs.
func installedVersion(prefix string, libDirs []string) string {
	for _, d := range libDirs {
		f, err := os.Open(filepath.Join(prefix, d, "cmake", "llvm", "LLVMConfig.cmake"))
		if err != nil {
			continue
		}
		v := scanVersion(bufio.NewScanner(f))
		f.Close()
		if v != "" {
			return v
		}
	}
	return ""
}

func scanVersion(s *bufio.Scanner) string {
	for s.Scan() {
		if m := configVersionRe.FindStringSubmatch(s.Text()); m != nil {
			return Canonical(m[1])
		}
	}
	return ""
}
