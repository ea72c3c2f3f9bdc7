// Package config loads the client configuration file and the CUE game
// template used to seed new games.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericnething/roll2d6-client/internal/replicate"
)

// Config is the on-disk client configuration.
type Config struct {
	RemoteURL    string     `yaml:"remote_url"`
	Username     string     `yaml:"username"`
	Password     string     `yaml:"password"`
	DataDir      string     `yaml:"data_dir"`
	EventsURL    string     `yaml:"events_url"`
	BeaconURL    string     `yaml:"beacon_url"`
	MessagingURL string     `yaml:"messaging_url"`
	Template     string     `yaml:"template"`
	Sync         SyncConfig `yaml:"sync"`
}

// SyncConfig tunes the live sync engine.
type SyncConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	LongpollTimeout time.Duration `yaml:"longpoll_timeout"`
	BatchSize       int           `yaml:"batch_size"`
	Backoff         BackoffConfig `yaml:"backoff"`
}

// BackoffConfig bounds the retry delay after a failed sync cycle.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path. Unknown keys are rejected. An empty
// path or an empty file yields the defaults. Load does not validate; callers
// apply flag overrides first and then call Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = replicate.DefaultPollInterval
	}
	if c.Sync.LongpollTimeout == 0 {
		c.Sync.LongpollTimeout = replicate.DefaultLongpollTimeout
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = replicate.DefaultBatchSize
	}
	if c.Sync.Backoff.Initial == 0 {
		c.Sync.Backoff.Initial = replicate.DefaultInitialBackoff
	}
	if c.Sync.Backoff.Max == 0 {
		c.Sync.Backoff.Max = replicate.DefaultMaxBackoff
	}
}

// Validate checks that the configuration can start a session.
func (c *Config) Validate() error {
	var errs []error

	if c.RemoteURL == "" {
		errs = append(errs, errors.New("remote_url is required"))
	} else if err := checkURL(c.RemoteURL); err != nil {
		errs = append(errs, fmt.Errorf("remote_url: %w", err))
	}
	for name, v := range map[string]string{
		"events_url":    c.EventsURL,
		"beacon_url":    c.BeaconURL,
		"messaging_url": c.MessagingURL,
	} {
		if v == "" {
			continue
		}
		if err := checkURL(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Sync.PollInterval < 0 {
		errs = append(errs, errors.New("sync.poll_interval must be positive"))
	}
	if c.Sync.LongpollTimeout < 0 {
		errs = append(errs, errors.New("sync.longpoll_timeout must be positive"))
	}
	if c.Sync.BatchSize < 0 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}
	if c.Sync.Backoff.Initial < 0 || c.Sync.Backoff.Max < 0 {
		errs = append(errs, errors.New("sync.backoff durations must be positive"))
	} else if c.Sync.Backoff.Max < c.Sync.Backoff.Initial {
		errs = append(errs, errors.New("sync.backoff.max must not be below sync.backoff.initial"))
	}

	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// SyncOptions converts the sync section into engine options.
func (c *Config) SyncOptions(logger *slog.Logger) replicate.Options {
	return replicate.Options{
		BatchSize:       c.Sync.BatchSize,
		LongpollTimeout: c.Sync.LongpollTimeout,
		PollInterval:    c.Sync.PollInterval,
		InitialBackoff:  c.Sync.Backoff.Initial,
		MaxBackoff:      c.Sync.Backoff.Max,
		Logger:          logger,
	}
}
