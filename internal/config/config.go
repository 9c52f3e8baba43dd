// Package config loads process configuration from the environment and the
// optional junction profile file.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	envconf "github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/luckyComet55/junction-control/internal/junction"
)

type ServerConfig struct {
	Env             string        `env:"ENV, required"`
	ListenAddr      string        `env:"LISTEN_ADDR, default=:50051"`
	Mode            string        `env:"JUNCTION_MODE, default=manual"`
	Yellow          time.Duration `env:"T_YELLOW, default=3s"`
	Clearance       time.Duration `env:"T_CLEARANCE, default=1s"`
	Walk            time.Duration `env:"T_WALK, default=10s"`
	Flash           time.Duration `env:"T_FLASH, default=3s"`
	Flashing        bool          `env:"PEDESTRIAN_FLASHING, default=true"`
	JournalCapacity int           `env:"JOURNAL_CAPACITY, default=50"`
	ProfilePath     string        `env:"PROFILE_PATH"`
}

type BotConfig struct {
	BotApiKey       string  `env:"BOT_TOKEN, required"`
	AuthorizedUsers []int64 `env:"AUTHORIZED_USER_IDS, required"`
	ServerURL       string  `env:"SERVER_URL, required"`
	Env             string  `env:"ENV, required"`
}

// Profile is the YAML junction profile. Zero fields leave the environment
// value in place.
type Profile struct {
	Mode   string `yaml:"mode"`
	Timing struct {
		Yellow    time.Duration `yaml:"yellow"`
		Clearance time.Duration `yaml:"clearance"`
		Walk      time.Duration `yaml:"walk"`
		Flash     time.Duration `yaml:"flash"`
		Flashing  *bool         `yaml:"flashing"`
	} `yaml:"timing"`
}

// LoadServer reads the server config through l and applies PROFILE_PATH if set.
func LoadServer(ctx context.Context, l envconf.Lookuper) (ServerConfig, error) {
	var c ServerConfig
	if err := envconf.ProcessWith(ctx, &envconf.Config{Target: &c, Lookuper: l}); err != nil {
		return ServerConfig{}, fmt.Errorf("server config: %w", err)
	}

	if c.ProfilePath != "" {
		p, err := LoadProfile(c.ProfilePath)
		if err != nil {
			return ServerConfig{}, err
		}
		c.Apply(p)
	}
	return c, nil
}

func LoadBot(ctx context.Context, l envconf.Lookuper) (BotConfig, error) {
	var c BotConfig
	if err := envconf.ProcessWith(ctx, &envconf.Config{Target: &c, Lookuper: l}); err != nil {
		return BotConfig{}, fmt.Errorf("bot config: %w", err)
	}
	return c, nil
}

func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

func (c *ServerConfig) Apply(p Profile) {
	if p.Mode != "" {
		c.Mode = p.Mode
	}
	if p.Timing.Yellow != 0 {
		c.Yellow = p.Timing.Yellow
	}
	if p.Timing.Clearance != 0 {
		c.Clearance = p.Timing.Clearance
	}
	if p.Timing.Walk != 0 {
		c.Walk = p.Timing.Walk
	}
	if p.Timing.Flash != 0 {
		c.Flash = p.Timing.Flash
	}
	if p.Timing.Flashing != nil {
		c.Flashing = *p.Timing.Flashing
	}
}

// Junction converts the config into a sequencer config on the real clock.
func (c ServerConfig) Junction() (junction.Config, error) {
	mode, err := junction.ParseMode(c.Mode)
	if err != nil {
		return junction.Config{}, err
	}
	timing := junction.Timing{
		Yellow:    c.Yellow,
		Clearance: c.Clearance,
		Walk:      c.Walk,
		Flash:     c.Flash,
		Flashing:  c.Flashing,
	}
	if err := timing.Validate(); err != nil {
		return junction.Config{}, err
	}
	return junction.Config{Mode: mode, Timing: timing}, nil
}

// ConfigureLogger builds the process logger: text at debug level for dev,
// JSON at info level for prod.
func ConfigureLogger(env string, w io.Writer) (*slog.Logger, error) {
	switch env {
	case "dev":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})), nil
	case "prod":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})), nil
	default:
		return nil, fmt.Errorf("incorrect env type: %s. possible values: dev, prod", env)
	}
}
