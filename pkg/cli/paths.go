package cli

import (
	"os"
	"path/filepath"
)

// Paths resolves the lingopod directory layout under the user's home.
type Paths struct {
	// HomeDir is the user's home directory.
	HomeDir string
}

// NewPaths creates a Paths instance.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns the base directory (~/.lingopod).
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns the config file path (~/.lingopod/config.yaml).
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// ProfileFile returns the saved settings path (~/.lingopod/profile.msgpack).
func (p *Paths) ProfileFile() string {
	return filepath.Join(p.BaseDir(), "profile.msgpack")
}

// ClipsDir returns the clip cache directory (~/.lingopod/clips).
func (p *Paths) ClipsDir() string {
	return filepath.Join(p.BaseDir(), "clips")
}

// GoalsDir returns the goal progress directory (~/.lingopod/goals).
func (p *Paths) GoalsDir() string {
	return filepath.Join(p.BaseDir(), "goals")
}

// ArchiveDir returns the local session archive root (~/.lingopod/archive).
func (p *Paths) ArchiveDir() string {
	return filepath.Join(p.BaseDir(), "archive")
}

// LogDir returns the log directory (~/.lingopod/logs).
func (p *Paths) LogDir() string {
	return filepath.Join(p.BaseDir(), "logs")
}

// EnsureBaseDir creates the base directory if it does not exist.
func (p *Paths) EnsureBaseDir() error {
	return os.MkdirAll(p.BaseDir(), 0755)
}

// EnsureClipsDir creates the clip cache directory if it does not exist.
func (p *Paths) EnsureClipsDir() error {
	return os.MkdirAll(p.ClipsDir(), 0755)
}

// EnsureGoalsDir creates the goal progress directory if it does not exist.
func (p *Paths) EnsureGoalsDir() error {
	return os.MkdirAll(p.GoalsDir(), 0755)
}

// EnsureLogDir creates the log directory if it does not exist.
func (p *Paths) EnsureLogDir() error {
	return os.MkdirAll(p.LogDir(), 0755)
}

// LogPath returns a path within the log directory.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogDir(), name)
}
