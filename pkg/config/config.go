package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration manifest for a single
// Hearth peer: where it listens, where it persists lumps, which password
// gates the peer plane, and which services its registry is seeded with.
type Config struct {
	// ListenAddr is the TCP address the peer plane listens on, e.g.
	// ":9191".
	ListenAddr string `yaml:"listenAddr"`

	// DataDir is where the lump store's backing database lives.
	DataDir string `yaml:"dataDir"`

	// PasswordEnv names an environment variable holding the PAKE
	// password; preferred over embedding the password in the manifest
	// itself. Password is a fallback for local development.
	PasswordEnv string `yaml:"passwordEnv,omitempty"`
	Password    string `yaml:"password,omitempty"`

	// IPCSocketPath is the well-known per-user Unix socket path the
	// daemon listens on for local clients (§6 IPC interface).
	IPCSocketPath string `yaml:"ipcSocketPath"`

	// Nickname identifies this peer to humans, surfaced through the peer
	// API's get_info.
	Nickname string `yaml:"nickname,omitempty"`

	// MaxProcesses caps the number of simultaneously live processes; zero
	// means unlimited.
	MaxProcesses int `yaml:"maxProcesses,omitempty"`

	// Peers lists addresses of other hearthd instances to join at
	// startup.
	Peers []string `yaml:"peers,omitempty"`

	// Services lists service names parsed from the config file. hearthd
	// does not read this field; the service registry is seeded through
	// runtime.RuntimeBuilder.AddService.
	Services []string `yaml:"services,omitempty"`

	// Log holds logging settings parsed from the config file. hearthd does
	// not read this field; it sets up logging from its --log-level and
	// --log-json flags.
	Log LogConfig `yaml:"log"`

	// Metrics controls whether/where the Prometheus scrape endpoint is
	// mounted.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig mirrors pkg/log.Config in YAML-serializable form.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a Config with the same baseline values a fresh
// single-peer deployment would want: listen on 9191, data under
// ./data, IPC socket at the conventional per-user path, metrics off.
func Default() Config {
	return Config{
		ListenAddr:    ":9191",
		DataDir:       "./data",
		IPCSocketPath: defaultIPCSocketPath(),
		Log:           LogConfig{Level: "info", JSON: false},
		Metrics:       MetricsConfig{Enabled: false, Addr: ":9190"},
	}
}

// Load reads and parses a Config from path, filling any field left zero
// with Default()'s value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePassword returns the configured PAKE password: the named
// environment variable if PasswordEnv is set and present, falling back to
// the literal Password field.
func (c Config) ResolvePassword() ([]byte, error) {
	if c.PasswordEnv != "" {
		if v, ok := os.LookupEnv(c.PasswordEnv); ok {
			return []byte(v), nil
		}
	}
	if c.Password != "" {
		return []byte(c.Password), nil
	}
	return nil, fmt.Errorf("config: no password configured (set passwordEnv or password)")
}

// defaultIPCSocketPath returns the well-known per-user socket path, per §6:
// $XDG_RUNTIME_DIR/hearth.sock, falling back to a path under the system
// temp directory when XDG_RUNTIME_DIR is unset.
func defaultIPCSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "hearth.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("hearth-%d.sock", os.Getuid()))
}
