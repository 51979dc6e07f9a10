package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Room      *RoomConfig      `json:"room"`
	Database  *DatabaseConfig  `json:"database"`
}

// HTTPConfig covers the listener and the static client directory.
type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	StaticDir    string        `json:"static_dir"`
}

// WebSocketConfig tunes heartbeat and per-connection buffering.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RoomConfig holds whiteboard room policy.
type RoomConfig struct {
	MaxEntries  int           `json:"max_entries"`
	GracePeriod time.Duration `json:"grace_period"`
	DefaultID   string        `json:"default_id"`
}

// DatabaseConfig holds the archive store settings.
type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	ArchiveEnabled bool          `json:"archive_enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:         3000,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			StaticDir:    "./public",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Room: &RoomConfig{
			MaxEntries:  1000,
			GracePeriod: 5 * time.Minute,
			DefaultID:   "default",
		},
		Database: &DatabaseConfig{
			Path:           "./whiteboard.db",
			Timeout:        30 * time.Second,
			ArchiveEnabled: true,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("WebSocket ping interval must be shorter than the read timeout")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Room == nil {
		return fmt.Errorf("room configuration is required")
	}
	if c.Room.MaxEntries <= 0 {
		return fmt.Errorf("room max entries must be positive")
	}
	if c.Room.GracePeriod <= 0 {
		return fmt.Errorf("room grace period must be positive")
	}
	if strings.TrimSpace(c.Room.DefaultID) == "" {
		return fmt.Errorf("default room id cannot be empty")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.ArchiveEnabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty when archiving is enabled")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	return nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// PORT wins over WHITEBOARD_HTTP_PORT so platform-assigned ports are honored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	if port, ok := envInt("WHITEBOARD_HTTP_PORT"); ok {
		config.HTTP.Port = port
	}
	if port, ok := envInt("PORT"); ok {
		config.HTTP.Port = port
	}
	if host := os.Getenv("WHITEBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dir := os.Getenv("WHITEBOARD_STATIC_DIR"); dir != "" {
		config.HTTP.StaticDir = dir
	}
	if d, ok := envDuration("WHITEBOARD_HTTP_READ_TIMEOUT"); ok {
		config.HTTP.ReadTimeout = d
	}
	if d, ok := envDuration("WHITEBOARD_HTTP_WRITE_TIMEOUT"); ok {
		config.HTTP.WriteTimeout = d
	}

	if d, ok := envDuration("WHITEBOARD_WEBSOCKET_PING_INTERVAL"); ok {
		config.WebSocket.PingInterval = d
	}
	if d, ok := envDuration("WHITEBOARD_WEBSOCKET_READ_TIMEOUT"); ok {
		config.WebSocket.ReadTimeout = d
	}
	if d, ok := envDuration("WHITEBOARD_WEBSOCKET_WRITE_TIMEOUT"); ok {
		config.WebSocket.WriteTimeout = d
	}
	if size, ok := envInt("WHITEBOARD_WEBSOCKET_BUFFER_SIZE"); ok {
		config.WebSocket.BufferSize = size
	}

	if n, ok := envInt("WHITEBOARD_ROOM_MAX_ENTRIES"); ok {
		config.Room.MaxEntries = n
	}
	if d, ok := envDuration("WHITEBOARD_ROOM_GRACE_PERIOD"); ok {
		config.Room.GracePeriod = d
	}
	if id := os.Getenv("WHITEBOARD_ROOM_DEFAULT_ID"); id != "" {
		config.Room.DefaultID = id
	}

	if path := os.Getenv("WHITEBOARD_DATABASE_PATH"); path != "" {
		config.Database.Path = path
	}
	if d, ok := envDuration("WHITEBOARD_DATABASE_TIMEOUT"); ok {
		config.Database.Timeout = d
	}
	if v := os.Getenv("WHITEBOARD_ARCHIVE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.Database.ArchiveEnabled = enabled
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Room      *RoomConfigFile      `json:"room"`
	Database  *DatabaseConfigFile  `json:"database"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	StaticDir    string `json:"static_dir"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type RoomConfigFile struct {
	MaxEntries  int    `json:"max_entries"`
	GracePeriod string `json:"grace_period"`
	DefaultID   string `json:"default_id"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	ArchiveEnabled *bool  `json:"archive_enabled"`
}

// LoadFromFile reads a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// durationField is a duration string from the file and where it lands.
type durationField struct {
	raw    string
	target *time.Duration
	name   string
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var durations []durationField
	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if f.StaticDir != "" {
			config.HTTP.StaticDir = f.StaticDir
		}
		durations = append(durations,
			durationField{f.ReadTimeout, &config.HTTP.ReadTimeout, "http.read_timeout"},
			durationField{f.WriteTimeout, &config.HTTP.WriteTimeout, "http.write_timeout"},
		)
	}
	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		durations = append(durations,
			durationField{f.PingInterval, &config.WebSocket.PingInterval, "websocket.ping_interval"},
			durationField{f.ReadTimeout, &config.WebSocket.ReadTimeout, "websocket.read_timeout"},
			durationField{f.WriteTimeout, &config.WebSocket.WriteTimeout, "websocket.write_timeout"},
		)
	}
	if f := file.Room; f != nil {
		if f.MaxEntries > 0 {
			config.Room.MaxEntries = f.MaxEntries
		}
		if f.DefaultID != "" {
			config.Room.DefaultID = f.DefaultID
		}
		durations = append(durations, durationField{f.GracePeriod, &config.Room.GracePeriod, "room.grace_period"})
	}
	if f := file.Database; f != nil {
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if f.ArchiveEnabled != nil {
			config.Database.ArchiveEnabled = *f.ArchiveEnabled
		}
		durations = append(durations, durationField{f.Timeout, &config.Database.Timeout, "database.timeout"})
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, filepath, err)
		}
		*d.target = parsed
	}
	return nil
}

// LoadConfigWithPrecedence layers defaults, then environment, then the file if
// one is given. A broken file is an error rather than silently ignored.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
