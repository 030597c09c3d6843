package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the global ~/.qchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile holds one account's service endpoints and credentials,
// stored per profile in profile.toml.
type Profile struct {
	BaseURL     string `toml:"base_url"`
	RealtimeURL string `toml:"realtime_url"`
	AppID       string `toml:"app_id"`
	UserID      string `toml:"user_id"`
	Token       string `toml:"token"`
}

// Validate checks that the profile can reach and authenticate against
// the service.
func (p *Profile) Validate() error {
	switch {
	case p.BaseURL == "":
		return fmt.Errorf("profile: base_url is required")
	case p.RealtimeURL == "":
		return fmt.Errorf("profile: realtime_url is required")
	case p.AppID == "":
		return fmt.Errorf("profile: app_id is required")
	case p.UserID == "":
		return fmt.Errorf("profile: user_id is required")
	case p.Token == "":
		return fmt.Errorf("profile: token is required")
	}
	return nil
}

// Load reads the global config. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return encodeFile(path, cfg)
}

// LoadProfile reads a profile's endpoints and credentials.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile writes a profile file with owner-only permissions.
func SaveProfile(path string, p *Profile) error {
	return encodeFile(path, p)
}

func encodeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
