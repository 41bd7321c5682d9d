package build

import (
	"encoding/hex"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/minio/sha256-simd"

	"github.com/goplus/llvmsrc/internal/jsonfile"
)

// Cache directory layout:
//
//	buildRoot/
//	  <hash[:16]>/                 # one BuildOutput per config hash
//	    .llvmsrc-complete.json     # completion marker, written last
//	    obj/                       # CMake binary dir
//	    install/                   # install prefix scanned for artifacts
//	      include/
//	      lib/
//	      bin/
const markerFile = ".llvmsrc-complete.json"

// dirHashLen is how many hex digits of the config hash name the directory.
const dirHashLen = 16

// Spec is every input that determines what a build produces. Two specs with
// the same Hash share one BuildOutput.
type Spec struct {
	Remote     string            `json:"remote"`
	Revision   string            `json:"revision"`
	Commit     string            `json:"commit"`
	Components []string          `json:"components"`
	Targets    []string          `json:"targets"`
	Options    map[string]string `json:"options"`
	Host       string            `json:"host"`
	Target     string            `json:"target"`
	Profile    string            `json:"profile"`
	Generator  string            `json:"generator"`
	CMake      string            `json:"cmake"`
	Ninja      string            `json:"ninja"`
}

// Hash returns the hex SHA-256 of the canonical JSON encoding of s.
// Map keys are encoded in sorted order, so the result is stable.
func (s *Spec) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// marker proves that a BuildOutput finished configure, build and install.
type marker struct {
	ConfigHash string        `json:"config_hash"`
	Spec       Spec          `json:"spec"`
	BuildTime  time.Time     `json:"build_time"`
	Duration   time.Duration `json:"duration"`
}

func loadMarker(dir string) (*marker, error) {
	var m marker
	if err := jsonfile.Load(filepath.Join(dir, markerFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveMarker(dir string, m *marker) error {
	return jsonfile.Save(filepath.Join(dir, markerFile), m)
}
