// Package manifest loads the TOML description of the monitoring stack:
// which service releases to install, where their archives come from,
// and where they land on the host.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Stack-wide settings.
type Stack struct {
	Name            string `toml:"name"`
	EnvironmentFile string `toml:"environment_file"`
	CacheDir        string `toml:"cache_dir"`
}

// Service describes one installable release.
type Service struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	ArchiveName string `toml:"archive"`
	MirrorsFile string `toml:"mirrors"`
	SHA256      string `toml:"sha256"`
}

// Manifest is the parsed stack manifest.
type Manifest struct {
	Stack    Stack     `toml:"stack"`
	Services []Service `toml:"service"`
}

// minimumVersions gates known services to the oldest release whose
// on-disk layout the installers understand.
var minimumVersions = map[string]string{
	"logstash": "6.3.0",
	"zeek":     "2.6.0",
	"filebeat": "6.3.0",
}

// Load reads, parses, and validates a manifest file.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	// Schema validation is best-effort, version gating is not.
	var generic map[string]any
	if err := toml.Unmarshal(b, &generic); err == nil {
		if err := validateSchema(generic); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	if err := m.checkVersions(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Service returns the named service entry.
func (m *Manifest) Service(name string) (Service, bool) {
	for _, s := range m.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

func (m *Manifest) checkVersions() error {
	for _, s := range m.Services {
		if s.Name == "" {
			return errors.New("manifest: service with empty name")
		}
		min, gated := minimumVersions[s.Name]
		if !gated {
			continue
		}
		v, err := semver.NewVersion(s.Version)
		if err != nil {
			return fmt.Errorf("service %s: bad version %q: %w", s.Name, s.Version, err)
		}
		c, err := semver.NewConstraint(">= " + min)
		if err != nil {
			return err
		}
		if !c.Check(v) {
			return fmt.Errorf("service %s: version %s is below the minimum supported %s", s.Name, s.Version, min)
		}
	}
	return nil
}

func validateSchema(m map[string]any) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mem://manifest.json", strings.NewReader(manifestSchema)); err != nil {
		return err
	}
	sch, err := c.Compile("mem://manifest.json")
	if err != nil {
		return err
	}
	// Round-trip through encoding/json so the instance carries JSON types.
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return err
	}
	return sch.Validate(inst)
}

const manifestSchema = `{
  "$schema":"https://json-schema.org/draft/2020-12/schema",
  "type":"object",
  "required":["service"],
  "properties":{
    "stack":{
      "type":"object",
      "properties":{
        "name":{"type":"string"},
        "environment_file":{"type":"string"},
        "cache_dir":{"type":"string"}
      }
    },
    "service":{
      "type":"array",
      "minItems":1,
      "items":{
        "type":"object",
        "required":["name","version","archive","mirrors"],
        "properties":{
          "name":{"type":"string"},
          "version":{"type":"string"},
          "archive":{"type":"string"},
          "mirrors":{"type":"string"},
          "sha256":{"type":"string"}
        }
      }
    }
  }
}`
