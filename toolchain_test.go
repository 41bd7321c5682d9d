package llvmsrc

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeGit serves a few known revisions. fetch of an unknown ref fails the way
// git does; a remote containing "unreachable" fails like a network error.
const fakeGit = `#!/bin/sh
echo "git $*" >> "@LOG@"
case "$1" in
init)
	mkdir -p .git
	;;
fetch)
	remote="$4"
	ref="$5"
	case "$remote" in
	*unreachable*)
		echo "fatal: unable to access '$remote': Could not resolve host" >&2
		exit 128
		;;
	esac
	case "$ref" in
	llvmorg-16.0.0) hash=08d094a0e457360ad8b94b017d2dc277e697ca76 ;;
	llvmorg-15.0.7) hash=8dfdcc7b7bf66834a761bd8de445840ef68e4d1a ;;
	main) hash=4c5aa5c5a2c5d5e5f5a5b5c5d5e5f5a5b5c5d5e5 ;;
	*)
		echo "fatal: couldn't find remote ref $ref" >&2
		exit 128
		;;
	esac
	echo "$hash" > .git/FETCH_HEAD
	;;
checkout)
	cp .git/FETCH_HEAD .git/HEAD
	mkdir -p llvm
	echo "project(LLVM)" > llvm/CMakeLists.txt
	;;
esac
`

// fakeCMake configures, builds and installs a skeleton LLVM prefix. Files in
// the control dir inject failures: fail-build makes the build step exit 3,
// hang-build makes it block until killed.
const fakeCMake = `#!/bin/sh
echo "cmake $*" >> "@LOG@"
ctl="@CTL@"
case "$1" in
-S)
	obj=""
	projects=""
	prev=""
	for a in "$@"; do
		[ "$prev" = "-B" ] && obj="$a"
		case "$a" in
		-DLLVM_ENABLE_PROJECTS:STRING=*) projects="${a#*=}" ;;
		esac
		prev="$a"
	done
	mkdir -p "$obj"
	: > "$obj/build.ninja"
	printf '%s' "$projects" > "$obj/projects"
	;;
--build)
	if [ -f "$ctl/hang-build" ]; then
		: > "$ctl/started"
		sleep 30 &
		wait
		exit 1
	fi
	if [ -f "$ctl/fail-build" ]; then
		echo "FAILED: lib/Support/CMakeFiles/LLVMSupport.dir/APInt.cpp.o" >&2
		echo "ninja: build stopped: subcommand failed." >&2
		exit 3
	fi
	;;
--install)
	obj="$2"
	prefix=""
	prev=""
	for a in "$@"; do
		[ "$prev" = "--prefix" ] && prefix="$a"
		prev="$a"
	done
	mkdir -p "$prefix/lib" "$prefix/include/llvm" "$prefix/bin"
	: > "$prefix/lib/libLLVMSupport.a"
	: > "$prefix/lib/libLLVMCore.a"
	: > "$prefix/include/llvm/Config.h"
	printf '#!/bin/sh\n' > "$prefix/bin/llvm-config"
	chmod +x "$prefix/bin/llvm-config"
	case ";$(cat "$obj/projects");" in
	*";clang;"*) : > "$prefix/lib/libclangBasic.a" ;;
	esac
	;;
esac
`

// toolchain is a set of fake tools that log every invocation.
type toolchain struct {
	dir   string
	log   string
	ctl   string
	git   string
	cmake string
	ninja string
}

func newToolchain(t *testing.T) *toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs /bin/sh")
	}
	dir := t.TempDir()
	tc := &toolchain{
		dir:   dir,
		log:   filepath.Join(dir, "invocations.log"),
		ctl:   filepath.Join(dir, "ctl"),
		git:   filepath.Join(dir, "git"),
		cmake: filepath.Join(dir, "cmake"),
		ninja: filepath.Join(dir, "ninja"),
	}
	if err := os.MkdirAll(tc.ctl, 0o755); err != nil {
		t.Fatal(err)
	}
	r := strings.NewReplacer("@LOG@", tc.log, "@CTL@", tc.ctl)
	for path, script := range map[string]string{
		tc.git:   fakeGit,
		tc.cmake: fakeCMake,
		tc.ninja: "#!/bin/sh\nexit 0\n",
	} {
		if err := os.WriteFile(path, []byte(r.Replace(script)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return tc
}

// builder returns a Builder using the fake tools and a fresh cache root.
func (tc *toolchain) builder(t *testing.T) *Builder {
	t.Helper()
	return New().
		CacheDir(filepath.Join(t.TempDir(), "cache")).
		Git(tc.git).
		CMake(tc.cmake).
		Ninja(tc.ninja).
		Jobs(2)
}

// calls returns the logged invocations so far.
func (tc *toolchain) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(tc.log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// set creates or removes a control file.
func (tc *toolchain) set(t *testing.T, name string, on bool) {
	t.Helper()
	path := filepath.Join(tc.ctl, name)
	if !on {
		os.Remove(path)
		return
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}
