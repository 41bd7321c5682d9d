package internal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goplus/llvmsrc"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		in      []string
		want    [][2]string
		wantErr bool
	}{
		{in: nil, want: nil},
		{in: []string{"LLVM_ENABLE_RTTI=ON"}, want: [][2]string{{"LLVM_ENABLE_RTTI", "ON"}}},
		{in: []string{"LLVM_PARALLEL_LINK_JOBS=2", "CMAKE_C_FLAGS=-O2 -g"}, want: [][2]string{
			{"LLVM_PARALLEL_LINK_JOBS", "2"},
			{"CMAKE_C_FLAGS", "-O2 -g"},
		}},
		{in: []string{"EMPTY="}, want: [][2]string{{"EMPTY", ""}}},
		{in: []string{"-Wno-dev"}, want: [][2]string{{"-Wno-dev", ""}}},
		{in: []string{"--log-level=ERROR"}, want: [][2]string{{"--log-level", "ERROR"}}},
		{in: []string{"NOVALUE"}, wantErr: true},
		{in: []string{"=ON"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseOptions(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOptions(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseOptions(%q) = %q, want %q", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseOptions(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestFormatByName(t *testing.T) {
	for _, name := range []string{"env", "cargo"} {
		f, err := formatByName(name)
		if err != nil || f == nil {
			t.Errorf("formatByName(%q) = %v, %v", name, f, err)
		}
	}
	if _, err := formatByName("json"); err == nil {
		t.Error("formatByName(json) succeeded")
	}
}

func TestNewBuilderFlags(t *testing.T) {
	t.Setenv("LLVMSRC_REVISION", "llvmorg-16.0.0")
	t.Setenv("OUT_DIR", "")
	t.Setenv("LLVMSRC_CACHE_DIR", "")
	dir := t.TempDir()
	cacheDir, verbose = dir, true
	defer func() { cacheDir, verbose = "", false }()

	b, err := newBuilder()
	if err != nil {
		t.Fatal(err)
	}
	cfg := b.Config()
	if cfg.CacheDir != dir || !cfg.Verbose || cfg.Revision != "llvmorg-16.0.0" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Remote != llvmsrc.DefaultRemote {
		t.Errorf("Remote = %q", cfg.Remote)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "llvmsrc ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBuildRejectsBadFormat(t *testing.T) {
	rootCmd.SetArgs([]string{"build", "--format", "yaml"})
	defer func() {
		rootCmd.SetArgs(nil)
		buildFormat = "env"
	}()
	var errOut bytes.Buffer
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildGeneratorFlag(t *testing.T) {
	f := buildCmd.Flags().Lookup("generator")
	if f == nil || f.Shorthand != "G" || f.DefValue != "" {
		t.Fatalf("generator flag = %+v", f)
	}
}
