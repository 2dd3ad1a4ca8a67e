package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	EnvHost        = "PTYMUX_HOST"
	EnvPort        = "PTYMUX_PORT"
	EnvCommand     = "PTYMUX_COMMAND"
	EnvCommandArgs = "PTYMUX_COMMAND_ARGS"
	EnvBaseURL     = "PTYMUX_BASE_URL"
	EnvLogLevel    = "PTYMUX_LOG_LEVEL"
)

// Config holds every server setting.
type Config struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Command     string `toml:"command"`
	CommandArgs string `toml:"command_args"`
	BaseURL     string `toml:"base_url"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	Banner      string `toml:"banner"`

	InitialRows     int           `toml:"initial_rows"`
	InitialCols     int           `toml:"initial_cols"`
	PollInterval    time.Duration `toml:"poll_interval"`
	ReadChunkBytes  int           `toml:"read_chunk_bytes"`
	ScrollbackBytes int           `toml:"scrollback_bytes"`

	SpawnFailureThreshold int           `toml:"spawn_failure_threshold"`
	SpawnCooldown         time.Duration `toml:"spawn_cooldown"`
}

func Default() Config {
	return Config{
		Host:                  "0.0.0.0",
		Port:                  5000,
		Command:               "bash",
		BaseURL:               "/",
		LogLevel:              "info",
		LogFormat:             "text",
		Banner:                "Connected to ptymux.",
		InitialRows:           50,
		InitialCols:           50,
		PollInterval:          10 * time.Millisecond,
		ReadChunkBytes:        20 * 1024,
		ScrollbackBytes:       64 * 1024,
		SpawnFailureThreshold: 3,
		SpawnCooldown:         30 * time.Second,
	}
}

// LoadFile overlays the settings present in a TOML file onto c. Keys
// absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overlays the PTYMUX_* variables found by lookup onto c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvHost); ok {
		c.Host = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvPort, v)
		}
		c.Port = port
	}
	if v, ok := lookup(EnvCommand); ok {
		c.Command = v
	}
	if v, ok := lookup(EnvCommandArgs); ok {
		c.CommandArgs = v
	}
	if v, ok := lookup(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	return nil
}

// Argv is the command line run in every new terminal.
func (c Config) Argv() ([]string, error) {
	args, err := shlex.Split(c.CommandArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: command args %q: %w", ErrInvalid, c.CommandArgs, err)
	}
	return append([]string{c.Command}, args...), nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventPath is where the event channel is served.
func (c Config) EventPath() string {
	return c.BaseURL + "pty"
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Command) == "" {
		errs = append(errs, errors.New("command is empty"))
	}
	if c.Port < 0 || c.Port > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.BaseURL, "/") || !strings.HasSuffix(c.BaseURL, "/") {
		errs = append(errs, fmt.Errorf("base url %q must start and end with /", c.BaseURL))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.InitialRows <= 0 || c.InitialRows > math.MaxUint16 || c.InitialCols <= 0 || c.InitialCols > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("initial size %dx%d out of range", c.InitialRows, c.InitialCols))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ReadChunkBytes <= 0 {
		errs = append(errs, errors.New("read chunk size must be positive"))
	}
	if c.ScrollbackBytes <= 0 {
		errs = append(errs, errors.New("scrollback size must be positive"))
	}
	if c.SpawnFailureThreshold <= 0 {
		errs = append(errs, errors.New("spawn failure threshold must be positive"))
	}
	if c.SpawnCooldown < 0 {
		errs = append(errs, errors.New("spawn cooldown must not be negative"))
	}
	if _, err := c.Argv(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
