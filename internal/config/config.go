// Package config loads the optional server configuration file.
//
// Defaults come first, then the file, then explicitly set command line
// flags. Files ending in .yaml or .yml are read as yaml, anything else
// as json with comments. The session secret never lives in the file,
// only the name of the environment variable that holds it.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Bind     string         `yaml:"bind" json:"bind"`
		Data     string         `yaml:"data" json:"data"`
		Session  SessionConfig  `yaml:"session" json:"session"`
		Throttle ThrottleConfig `yaml:"throttle" json:"throttle"`
		Server   ServerConfig   `yaml:"server" json:"server"`
		Router   RouterConfig   `yaml:"router" json:"router"`
	}

	SessionConfig struct {
		CookieName string   `yaml:"cookie_name" json:"cookie_name"`
		TTL        Duration `yaml:"ttl" json:"ttl"`
		SecretEnv  string   `yaml:"secret_env" json:"secret_env"`
		// InsecureCookie allows the cookie over plain http.
		InsecureCookie bool `yaml:"insecure_cookie" json:"insecure_cookie"`
	}

	ThrottleConfig struct {
		LoginPerMinute int `yaml:"login_per_minute" json:"login_per_minute"`
		Burst          int `yaml:"burst" json:"burst"`
		// TrustedProxies lists the networks whose X-Forwarded-For header
		// names the real client, such as the address of `serve router`.
		TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`
	}

	ServerConfig struct {
		ReadTimeout       Duration `yaml:"read_timeout" json:"read_timeout"`
		ReadHeaderTimeout Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
		WriteTimeout      Duration `yaml:"write_timeout" json:"write_timeout"`
		IdleTimeout       Duration `yaml:"idle_timeout" json:"idle_timeout"`
		ShutdownGrace     Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
	}

	RouterConfig struct {
		API   string `yaml:"api" json:"api"`
		Query string `yaml:"query" json:"query"`
	}

	// Duration reads "90s" or "720h" style values.
	Duration time.Duration
)

const (
	DefaultBind       = "localhost:7010"
	DefaultData       = "./postbox-data"
	DefaultCookieName = "postbox.session-token"
	DefaultSecretEnv  = "POSTBOX_SESSION_SECRET"
	DefaultSessionTTL = 30 * 24 * time.Hour
)

func Default() Config {
	return Config{
		Bind: DefaultBind,
		Data: DefaultData,
		Session: SessionConfig{
			CookieName: DefaultCookieName,
			TTL:        Duration(DefaultSessionTTL),
			SecretEnv:  DefaultSecretEnv,
		},
		Throttle: ThrottleConfig{
			LoginPerMinute: 10,
			Burst:          5,
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		Server: ServerConfig{
			ReadTimeout:       Duration(5 * time.Minute),
			ReadHeaderTimeout: Duration(time.Minute),
			WriteTimeout:      Duration(time.Minute),
			IdleTimeout:       Duration(5 * time.Minute),
			ShutdownGrace:     Duration(time.Minute),
		},
		Router: RouterConfig{
			API:   "http://localhost:7011",
			Query: "http://localhost:7012",
		},
	}
}

// Load reads path over the defaults, an empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config file %v, cause %w", path, err)
	}
	if err = Parse(filepath.Ext(path), data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse config file %v, cause %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %v, cause %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg, unknown keys are errors.
func Parse(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err := dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Bind) == "":
		return errors.New("bind address cannot be empty")
	case strings.TrimSpace(c.Data) == "":
		return errors.New("data location cannot be empty")
	case c.Session.CookieName == "":
		return errors.New("session cookie name cannot be empty")
	case c.Session.SecretEnv == "":
		return errors.New("session secret variable cannot be empty")
	case c.Session.TTL <= 0:
		return errors.New("session ttl must be positive")
	case c.Throttle.LoginPerMinute < 0 || c.Throttle.Burst < 0:
		return errors.New("throttle values cannot be negative")
	}
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalJSON(buf []byte) error {
	var s string
	if err := json.Unmarshal(buf, &s); err != nil {
		return fmt.Errorf("durations must be strings like \"90s\", cause %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
