// Package plugins discovers declared external plugins and runs them as
// subprocesses. The agent only consumes the Host interface; argument schema
// validation happens in the tool registry like any built-in tool.
package plugins

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest declares one plugin: how to invoke it and what arguments it takes.
type Manifest struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Version     string         `yaml:"version"`
	Command     []string       `yaml:"command"`
	Schema      map[string]any `yaml:"schema"`
	TimeoutS    int            `yaml:"timeout_s"`
	Cacheable   bool           `yaml:"cacheable"`

	// NeedsNetwork subjects the plugin to the allow_network policy.
	NeedsNetwork bool `yaml:"needs_network"`

	// Path is where the manifest was found. Relative commands resolve
	// against its directory.
	Path string `yaml:"-"`
}

// Result is the outcome of one plugin invocation.
type Result struct {
	OK         bool   `json:"ok"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

func isManifestFilename(name string) bool {
	return strings.HasSuffix(name, ".plugin.yaml") || strings.HasSuffix(name, ".plugin.yml")
}

// DiscoverManifests scans the given directories for *.plugin.yaml files.
// Missing directories are skipped. Duplicate plugin ids are an error.
func DiscoverManifests(paths []string) ([]*Manifest, error) {
	byID := make(map[string]*Manifest)
	for _, root := range paths {
		if strings.TrimSpace(root) == "" {
			continue
		}
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isManifestFilename(d.Name()) {
				return nil
			}
			m, err := loadManifest(path)
			if err != nil {
				return err
			}
			if prev, dup := byID[m.ID]; dup {
				return fmt.Errorf("duplicate plugin id %q (%s and %s)", m.ID, prev.Path, path)
			}
			byID[m.ID] = m
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	manifests := make([]*Manifest, 0, len(byID))
	for _, m := range byID {
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID < manifests[j].ID })
	return manifests, nil
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest %s has no id", path)
	}
	if len(m.Command) == 0 {
		return nil, fmt.Errorf("manifest %s (plugin %s) has no command", path, m.ID)
	}
	m.Path = path
	return &m, nil
}
