// Package config loads the bot settings from a JSON file, applies .env and
// environment overrides, and falls back to the OS keychain for the OAuth token.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/matt0x6f/twitch-chat/internal/constants"
	"github.com/matt0x6f/twitch-chat/internal/twitch"
	"github.com/matt0x6f/twitch-chat/internal/validation"
)

// Environment variables that override the file
const (
	EnvToken         = "TWITCH_TOKEN"
	EnvNickname      = "TWITCH_NICKNAME"
	EnvServerAddress = "TWITCH_SERVER_ADDRESS"
)

// Config is the bot's settings file
type Config struct {
	Application ApplicationConfig `json:"application"`
	Server      ServerConfig      `json:"server"`
	User        UserConfig        `json:"user"`
}

// ApplicationConfig holds logging, chat log, metrics and notification settings
type ApplicationConfig struct {
	LogLevel string `json:"log_level"`
	// Database is the SQLite chat log path; empty disables the log
	Database string `json:"database"`
	// MetricsAddr serves /metrics when set, e.g. ":9090"
	MetricsAddr    string `json:"metrics_addr"`
	NotifyWhispers bool   `json:"notify_whispers"`
}

// ServerConfig describes the chat server and heartbeat
type ServerConfig struct {
	Address          string `json:"address"`
	Port             int    `json:"port"`
	TLS              bool   `json:"tls"`
	TLSVerify        bool   `json:"tls_verify"`
	KeepAliveSeconds int    `json:"keep_alive_seconds"`
}

// UserConfig holds the bot account, its channels and trigger replies
type UserConfig struct {
	Token        string            `json:"token"`
	Nickname     string            `json:"nickname"`
	MainChannel  string            `json:"main_channel"`
	Channels     []string          `json:"channels"`
	Capabilities []string          `json:"capabilities"`
	Replies      map[string]string `json:"replies"`
}

// TokenLookup finds a stored OAuth token for a nickname.
type TokenLookup interface {
	GetToken(nickname string) (string, error)
}

// Default returns the settings used for keys missing from the file.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{LogLevel: "info"},
		Server: ServerConfig{
			Address:          twitch.DefaultServerName,
			Port:             6697,
			TLS:              true,
			TLSVerify:        true,
			KeepAliveSeconds: int(constants.DefaultKeepAliveInterval / time.Second),
		},
		User: UserConfig{
			Capabilities: []string{"tags", "commands", "membership"},
		},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the JSON file at path, applies environment overrides, resolves
// the token from tokens when still empty, and validates the result.
// tokens may be nil.
func Load(path string, tokens TokenLookup) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.User.Token == "" && tokens != nil && cfg.User.Nickname != "" {
		token, err := tokens.GetToken(cfg.User.Nickname)
		if err != nil {
			return nil, err
		}
		cfg.User.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.User.Token = v
	}
	if v := os.Getenv(EnvNickname); v != "" {
		c.User.Nickname = v
	}
	if v := os.Getenv(EnvServerAddress); v != "" {
		c.Server.Address = v
	}
}

// Validate checks that every field the connection needs is well formed.
func (c *Config) Validate() error {
	if err := validation.ValidateBotConfig(c.Server.Address, c.Server.Port, c.User.Nickname, c.User.Token, c.JoinList()); err != nil {
		return err
	}
	if c.Server.KeepAliveSeconds <= 0 {
		return fmt.Errorf("keep_alive_seconds must be positive")
	}
	if _, err := c.CapabilityList(); err != nil {
		return err
	}
	for trigger := range c.User.Replies {
		if !strings.HasPrefix(trigger, "!") || strings.ContainsAny(trigger, " \t") {
			return fmt.Errorf("reply trigger %q must be a single word starting with '!'", trigger)
		}
	}
	return nil
}

// Addr returns host:port for dialing.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// KeepAlive returns the heartbeat interval.
func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.Server.KeepAliveSeconds) * time.Second
}

// JoinList returns the channels to join, main channel first, lowercased,
// without '#' and without duplicates.
func (c *Config) JoinList() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range append([]string{c.User.MainChannel}, c.User.Channels...) {
		ch = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}

// CapabilityList converts the configured capability names.
func (c *Config) CapabilityList() ([]twitch.Capability, error) {
	caps := make([]twitch.Capability, 0, len(c.User.Capabilities))
	for _, name := range c.User.Capabilities {
		capability, err := twitch.ParseCapability(name)
		if err != nil {
			return nil, err
		}
		caps = append(caps, capability)
	}
	return caps, nil
}
