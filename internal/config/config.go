package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/benaskins/kvault/internal/keychain"
)

// Backend names accepted in the config file and on the command line.
const (
	BackendKeychain = "keychain"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

// Config holds CLI configuration loaded from ~/.kvault/config.yaml.
type Config struct {
	Backend         string `yaml:"backend"`
	ServiceName     string `yaml:"service_name"`
	AccessGroup     string `yaml:"access_group"`
	Accessibility   string `yaml:"accessibility"`
	FilePath        string `yaml:"file_path"`
	AuditLog        string `yaml:"audit_log"`
	MetadataPath    string `yaml:"metadata_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// Home returns the kvault home directory: ~/.kvault.
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kvault"), nil
}

// DefaultPath returns the default config file path: ~/.kvault/config.yaml.
func DefaultPath() string {
	home, err := Home()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from KVAULT_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for name, field := range map[string]*string{
		"KVAULT_BACKEND":      &c.Backend,
		"KVAULT_SERVICE":      &c.ServiceName,
		"KVAULT_ACCESS_GROUP": &c.AccessGroup,
		"KVAULT_FILE":         &c.FilePath,
	} {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}
}

// FillDefaults sets unset paths under home and picks the platform's
// backend: the Keychain on darwin, the encrypted file elsewhere.
func (c *Config) FillDefaults(home string) {
	if c.Backend == "" {
		if runtime.GOOS == "darwin" {
			c.Backend = BackendKeychain
		} else {
			c.Backend = BackendFile
		}
	}
	if c.FilePath == "" {
		c.FilePath = filepath.Join(home, "vault.db")
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(home, "audit.log")
	}
	if c.MetadataPath == "" {
		c.MetadataPath = filepath.Join(home, "metadata.json")
	}
}

// Validate rejects unknown backends and accessibility levels.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendKeychain, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want keychain, file or memory)", c.Backend)
	}
	if _, err := keychain.ParseAccessibility(c.Accessibility); err != nil {
		return err
	}
	return nil
}
