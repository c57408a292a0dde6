// Package cliconfig loads and saves the studyctl TOML configuration.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"studyflow/internal/models"
)

const (
	DefaultAPIURL = "http://localhost:8080/api/v1"

	EnvAPIURL = "STUDYCTL_API_URL"
	EnvToken  = "STUDYCTL_TOKEN"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	API     APIConfig     `toml:"api"`
	Ratings RatingsConfig `toml:"ratings"`
}

type APIConfig struct {
	URL   *string `toml:"url"`
	Token *string `toml:"token"`
	Email *string `toml:"email"`
}

// RatingsConfig holds the starting values of the completion form.
type RatingsConfig struct {
	Confidence    *int `toml:"confidence"`
	Focus         *int `toml:"focus"`
	Effectiveness *int `toml:"effectiveness"`
}

// Settings is the resolved configuration after defaults and env overrides.
type Settings struct {
	APIURL  string
	Token   string
	Email   string
	Ratings [3]int
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating the directory if needed. The file
// holds an access token so it is only readable by the owner.
func SaveConfig(path string, cfg FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Resolve applies defaults and then environment overrides. Flags are applied
// by the caller on top of the result.
func (c FileConfig) Resolve() Settings {
	s := Settings{
		APIURL:  DefaultAPIURL,
		Ratings: [3]int{models.DefaultRating, models.DefaultRating, models.DefaultRating},
	}
	if c.API.URL != nil && *c.API.URL != "" {
		s.APIURL = *c.API.URL
	}
	if c.API.Token != nil {
		s.Token = *c.API.Token
	}
	if c.API.Email != nil {
		s.Email = *c.API.Email
	}
	for i, v := range []*int{c.Ratings.Confidence, c.Ratings.Focus, c.Ratings.Effectiveness} {
		if v != nil {
			s.Ratings[i] = *v
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		s.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		s.Token = v
	}
	return s
}

func (c FileConfig) validate() error {
	ratings := map[string]*int{
		"ratings.confidence":    c.Ratings.Confidence,
		"ratings.focus":         c.Ratings.Focus,
		"ratings.effectiveness": c.Ratings.Effectiveness,
	}
	for name, v := range ratings {
		if v != nil && (*v < models.MinRating || *v > models.MaxRating) {
			return fmt.Errorf("%s must be between %d and %d", name, models.MinRating, models.MaxRating)
		}
	}
	return nil
}
