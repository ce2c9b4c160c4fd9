// Package manifest handles pumpkin.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

// FileName is the name of the project configuration file.
const FileName = "pumpkin.toml"

// DefaultAddr is the address the server listens on when none is configured.
const DefaultAddr = ":4567"

// Manifest represents a pumpkin.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Limits  Limits  `toml:"limits"`
	Log     Log     `toml:"log"`
	Server  Server  `toml:"server"`

	// Modules holds inline module tables, keyed by import path.
	Modules map[string]map[string]interface{} `toml:"modules"`

	// ModuleFiles maps an import path to a JSON AST file whose exports
	// become the module. Paths are relative to Dir.
	ModuleFiles map[string]string `toml:"module-files"`

	// Dir is the directory containing the pumpkin.toml file (set at load time).
	Dir string `toml:"-"`

	// keyOrder records the document order of keys under [modules].
	keyOrder map[string][]string
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Limits configures the execution fuses.
type Limits struct {
	MaxInstructions int `toml:"max-instructions"`
	MaxCallDepth    int `toml:"max-call-depth"`
	MaxStack        int `toml:"max-stack"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the Connect server.
type Server struct {
	Addr       string `toml:"addr"`
	SessionsDB string `toml:"sessions-db"`
}

// Default returns the configuration used when no pumpkin.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	if wd, err := os.Getwd(); err == nil {
		m.Dir = wd
	}
	return m
}

// Load parses a pumpkin.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes pumpkin.toml content and applies defaults. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	m.keyOrder = moduleKeyOrder(md.Keys())
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Limits.MaxCallDepth == 0 {
		m.Limits.MaxCallDepth = bytecode.DefaultMaxCallDepth
	}
	if m.Limits.MaxStack == 0 {
		m.Limits.MaxStack = bytecode.DefaultMaxStack
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

func (m *Manifest) validate() error {
	if m.Limits.MaxInstructions < 0 || m.Limits.MaxCallDepth < 0 || m.Limits.MaxStack < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	for name := range m.Modules {
		if err := ValidateModuleName(name); err != nil {
			return err
		}
		if _, dup := m.ModuleFiles[name]; dup {
			return fmt.Errorf("module %q is defined both inline and as a file", name)
		}
	}
	for name, path := range m.ModuleFiles {
		if err := ValidateModuleName(name); err != nil {
			return err
		}
		if path == "" {
			return fmt.Errorf("module file for %q has no path", name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a pumpkin.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// RuntimeLimits converts the [limits] section for the VM.
func (m *Manifest) RuntimeLimits() bytecode.Limits {
	return bytecode.Limits{
		MaxInstructions: m.Limits.MaxInstructions,
		MaxCallDepth:    m.Limits.MaxCallDepth,
		MaxStack:        m.Limits.MaxStack,
	}
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	return m.resolve(m.Log.File)
}

// SessionsDBPath returns the absolute path of the session database, or ""
// when sessions are kept in memory only.
func (m *Manifest) SessionsDBPath() string {
	return m.resolve(m.Server.SessionsDB)
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir, path)
}
