package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go-osu-download/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config.toml"

// Defaults returns the configuration used for fields the file leaves empty.
func Defaults() models.Config {
	return models.Config{
		SavePath:         "downloads",
		DatabasePath:     filepath.Join("data", "osu.db"),
		IndexPath:        filepath.Join("data", "osu.bleve"),
		Concurrency:      4,
		NoVideo:          true,
		ClientTimeoutSec: 60,
	}
}

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") on top of Defaults. A missing file yields the defaults and
// an error wrapping fs.ErrNotExist so the caller can decide whether that matters.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = DefaultPath
	}
	cfg := Defaults()
	meta, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), fmt.Errorf("config file %s: %w", configFilePath, err)
		}
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warnf("Ignoring unknown keys in %s: %v", configFilePath, undecoded)
	}

	if cfg.Concurrency <= 0 {
		log.Warnf("Concurrency %d in %s is invalid, using default", cfg.Concurrency, configFilePath)
		cfg.Concurrency = Defaults().Concurrency
	}

	log.Debugf("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// SaveConfig writes cfg to path, replacing any existing file.
func SaveConfig(configFilePath string, cfg models.Config) error {
	if configFilePath == "" {
		configFilePath = DefaultPath
	}
	if dir := filepath.Dir(configFilePath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory %s: %w", dir, err)
		}
	}

	tmp := configFilePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFilePath, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error writing config file %s: %w", configFilePath, err)
	}
	if err := os.Rename(tmp, configFilePath); err != nil {
		return fmt.Errorf("error replacing config file %s: %w", configFilePath, err)
	}
	log.Debugf("Configuration saved to %s", configFilePath)
	return nil
}

// RemoveConfig deletes the config file. A missing file is not an error.
func RemoveConfig(configFilePath string) error {
	if configFilePath == "" {
		configFilePath = DefaultPath
	}
	if err := os.Remove(configFilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
