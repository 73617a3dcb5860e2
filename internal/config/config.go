// ABOUTME: Profile file loading and parsing for clawdeck.
// ABOUTME: Supports TOML and YAML with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// GatewayProfile is the durable configuration for one gateway. The core
// only reads snapshots of it; creation and editing happen outside.
type GatewayProfile struct {
	ID    string `toml:"id" yaml:"id"`
	Name  string `toml:"name" yaml:"name"`
	Host  string `toml:"host" yaml:"host"`
	Port  int    `toml:"port" yaml:"port"`
	TLS   bool   `toml:"tls" yaml:"tls"`
	Token string `toml:"token" yaml:"token"`
	Path  string `toml:"path" yaml:"path"`
}

// URL builds the websocket endpoint for the profile.
func (p GatewayProfile) URL() string {
	scheme := "ws"
	if p.TLS {
		scheme = "wss"
	}
	path := p.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   path,
	}
	return u.String()
}

// DisplayName returns the human-facing name, falling back to host:port.
func (p GatewayProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// AgentBinding maps one gateway's agent to a local display slot.
type AgentBinding struct {
	GatewayID   string `toml:"gateway" yaml:"gateway"`
	AgentID     string `toml:"agent" yaml:"agent"`
	DisplayName string `toml:"display_name" yaml:"display_name"`
	Position    int    `toml:"position" yaml:"position"`
}

// LoggingConfig selects log verbosity, output format, and the size of the
// in-memory ring kept for diagnostics.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"`
}

// CallsConfig holds request/response call tuning.
type CallsConfig struct {
	Timeout time.Duration `toml:"-" yaml:"-"`

	// Raw string value for decoding ("30s", "2m").
	TimeoutRaw string `toml:"timeout" yaml:"timeout"`
}

// DeviceConfig points at the locally held device identity key.
type DeviceConfig struct {
	ID      string `toml:"id" yaml:"id"`
	KeyPath string `toml:"key_path" yaml:"key_path"`
}

// File is the complete clawdeck profile file.
type File struct {
	Profiles []GatewayProfile `toml:"profiles" yaml:"profiles"`
	Bindings []AgentBinding   `toml:"bindings" yaml:"bindings"`
	Logging  LoggingConfig    `toml:"logging" yaml:"logging"`
	Calls    CallsConfig      `toml:"calls" yaml:"calls"`
	Device   DeviceConfig     `toml:"device" yaml:"device"`
}

// Default tuning applied when the file omits a section.
const (
	DefaultCallTimeout   = 30 * time.Second
	DefaultLogBufferSize = 512
)

// DefaultFile returns a File with defaults applied and no profiles.
func DefaultFile() *File {
	return &File{
		Logging: LoggingConfig{Level: "info", Format: "text", BufferSize: DefaultLogBufferSize},
		Calls:   CallsConfig{Timeout: DefaultCallTimeout},
	}
}

// Load reads a profile file from path, expanding ${VAR} environment
// references and selecting the decoder by file extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(expanded, &f); err != nil {
			return nil, fmt.Errorf("parsing profile file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
			return nil, fmt.Errorf("parsing profile file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile file extension %q", ext)
	}

	if err := f.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("validating profile file: %w", err)
	}

	return &f, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (f *File) parseDurations() error {
	if f.Calls.TimeoutRaw != "" {
		d, err := time.ParseDuration(f.Calls.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing calls.timeout %q: %w", f.Calls.TimeoutRaw, err)
		}
		f.Calls.Timeout = d
	}
	return nil
}

func (f *File) applyDefaults() {
	if f.Calls.Timeout <= 0 {
		f.Calls.Timeout = DefaultCallTimeout
	}
	if f.Logging.Level == "" {
		f.Logging.Level = "info"
	}
	if f.Logging.Format == "" {
		f.Logging.Format = "text"
	}
	if f.Logging.BufferSize <= 0 {
		f.Logging.BufferSize = DefaultLogBufferSize
	}
}

// Validate checks profile and binding integrity.
func (f *File) Validate() error {
	ids := make(map[string]bool, len(f.Profiles))
	for i, p := range f.Profiles {
		if p.ID == "" {
			return fmt.Errorf("profiles[%d]: id is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("profiles[%d]: duplicate id %q", i, p.ID)
		}
		ids[p.ID] = true
		if p.Host == "" {
			return fmt.Errorf("profile %q: host is required", p.ID)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("profile %q: port %d out of range", p.ID, p.Port)
		}
	}

	for i, b := range f.Bindings {
		if b.GatewayID == "" || b.AgentID == "" {
			return fmt.Errorf("bindings[%d]: gateway and agent are required", i)
		}
		if !ids[b.GatewayID] {
			return fmt.Errorf("bindings[%d]: unknown gateway %q", i, b.GatewayID)
		}
	}

	return nil
}

// Profile returns the profile with the given id.
func (f *File) Profile(id string) (GatewayProfile, bool) {
	for _, p := range f.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return GatewayProfile{}, false
}
