package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Manifest is the on-disk record of a Load's outcome: which config
// groups parsed from their source files versus fell back to Default().
// The debug telemetry view (§6) reads this back at startup instead of
// holding a reference to the Result that produced it.
type Manifest struct {
	Groups map[string]bool `toml:"groups"`
}

// WriteManifest renders res as manifest.toml at path, the teacher's
// decode library used here for a write instead: BurntSushi/toml handles
// both directions of the same format.
func WriteManifest(path string, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: writing manifest: %w", err)
	}
	defer f.Close()

	m := Manifest{Groups: res.Loaded}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("config: encoding manifest: %w", err)
	}
	return nil
}

// LoadManifest reads back a manifest.toml written by WriteManifest. A
// missing or undecodable manifest is an error: the decode error is
// returned as is.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
