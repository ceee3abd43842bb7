// Package config loads the generator configuration from a dep11-config.yml
// file in the working directory given on the command line. The configuration
// is loaded once at startup and is immutable for the rest of the run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.yaml.in/yaml/v3"
)

// ConfigFileName is the expected name of the configuration file inside the
// directory passed to the process/cleanup/update_html commands.
const ConfigFileName = "dep11-config.yml"

// defaultIconSizes is used when the configuration does not list IconSizes.
var defaultIconSizes = []int{64, 128}

// Suite describes the components and architectures of one archive suite.
type Suite struct {
	// Components are the archive areas to scan (e.g. "main", "contrib").
	Components []string `yaml:"components"`
	// Architectures are the binary architectures to scan (e.g. "amd64").
	Architectures []string `yaml:"architectures"`
}

// Config is the full configuration of a generator run.
type Config struct {
	// ArchiveRoot is the root of the package archive, the directory
	// containing dists/ and pool/.
	ArchiveRoot string `yaml:"ArchiveRoot"`

	// MediaBaseUrl is the public URL under which exported assets
	// (icons, screenshots) are served.
	MediaBaseUrl string `yaml:"MediaBaseUrl"`

	// Suites maps suite names to the components and architectures to
	// process for that suite.
	Suites map[string]Suite `yaml:"Suites"`

	// IconSizes lists the icon pixel sizes to export and bundle.
	// Defaults to 64 and 128 if unset.
	IconSizes []int `yaml:"IconSizes"`

	// CacheDir is the directory of the persistent metadata cache.
	// Relative paths are resolved against the configuration directory.
	// Defaults to "cache".
	CacheDir string `yaml:"CacheDir"`

	// ExportDir is the directory for exported per-package assets and
	// HTML reports. Relative paths are resolved against the
	// configuration directory. Defaults to "export".
	ExportDir string `yaml:"ExportDir"`

	// SigningKeyFile optionally points to an ASCII-armored PGP private
	// key used to clearsign the published CHECKSUMS manifest.
	SigningKeyFile string `yaml:"SigningKeyFile"`

	// WorkerCount is the size of the extraction worker pool.
	// Zero means one worker per CPU core.
	WorkerCount int `yaml:"WorkerCount"`
}

// Load reads and validates <dir>/dep11-config.yml.
// Missing required keys are reported as errors so the caller can abort
// before any processing begins.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}

	if cfg.ArchiveRoot == "" {
		return nil, fmt.Errorf("%s: ArchiveRoot is required", path)
	}
	if cfg.MediaBaseUrl == "" {
		return nil, fmt.Errorf("%s: MediaBaseUrl is required", path)
	}
	if len(cfg.Suites) == 0 {
		return nil, fmt.Errorf("%s: at least one suite must be configured", path)
	}
	for name, suite := range cfg.Suites {
		if len(suite.Components) == 0 {
			return nil, fmt.Errorf("%s: suite %s has no components", path, name)
		}
		if len(suite.Architectures) == 0 {
			return nil, fmt.Errorf("%s: suite %s has no architectures", path, name)
		}
	}

	if len(cfg.IconSizes) == 0 {
		cfg.IconSizes = append([]int(nil), defaultIconSizes...)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "cache"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "export"
	}
	cfg.CacheDir = resolve(dir, cfg.CacheDir)
	cfg.ExportDir = resolve(dir, cfg.ExportDir)
	if cfg.SigningKeyFile != "" {
		cfg.SigningKeyFile = resolve(dir, cfg.SigningKeyFile)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}

	return &cfg, nil
}

// resolve makes path absolute relative to base unless it already is.
func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// DEP11Dir returns the directory of the published DEP-11 artifacts for a
// suite and component: <ArchiveRoot>/dists/<suite>/<component>/dep11.
func (c *Config) DEP11Dir(suite, component string) string {
	return filepath.Join(c.ArchiveRoot, "dists", suite, component, "dep11")
}

// ComponentExportDir returns the asset export directory of a suite and
// component. Each processed package owns an identity-named subdirectory
// below it.
func (c *Config) ComponentExportDir(suite, component string) string {
	return filepath.Join(c.ExportDir, suite, component)
}

// SigningKey reads the configured signing key file. It returns the empty
// string when no key is configured.
func (c *Config) SigningKey() (string, error) {
	if c.SigningKeyFile == "" {
		return "", nil
	}
	key, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return "", fmt.Errorf("reading signing key: %w", err)
	}
	return string(key), nil
}
