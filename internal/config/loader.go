package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/threadprobe/internal/constants"
	"github.com/coral-mesh/threadprobe/internal/privilege"
	"github.com/coral-mesh/threadprobe/internal/safe"
)

// Loader reads and writes the configuration file.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at $THREADPROBE_CONFIG, or ~/.threadprobe
// when the variable is unset. Without a home directory the loader falls back
// to a temporary directory, where Load returns defaults plus environment
// overrides.
func NewLoader() *Loader {
	if dir := os.Getenv(constants.ConfigDirEnv); dir != "" {
		return &Loader{dir: dir}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return &Loader{dir: filepath.Join(home, constants.DefaultDir)}
	}
	return &Loader{dir: filepath.Join(os.TempDir(), "threadprobe")}
}

// NewLoaderAt creates a loader rooted at dir.
func NewLoaderAt(dir string) *Loader {
	return &Loader{dir: dir}
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return filepath.Join(l.dir, constants.ConfigFile)
}

// Load reads the configuration file, applies environment overrides and
// validates the result. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	return LoadFile(l.Path())
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := safe.ReadFile(path, nil)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the configuration file.
func (l *Loader) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config holds no secrets
	if err := os.WriteFile(l.Path(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Under sudo, keep the directory and file owned by the invoking user.
	for _, path := range []string{l.dir, l.Path()} {
		if err := privilege.FixFileOwnership(path); err != nil {
			return err
		}
	}
	return nil
}
