/*
Package config loads service configuration.

SOURCES (later wins):
  1. Defaults
  2. YAML file named by CONF_FILE (default config.yml, optional)
  3. Environment variables

ENVIRONMENT:
  PORT, DB_PATH, LOG_LEVEL
  APNS_KEY_ID, APNS_TEAM_ID, APNS_PRIVATE_KEY, APNS_PRIVATE_KEY_SECRET,
  APNS_BUNDLE_ID, APNS_PRODUCTION
  PUSH_TIMEOUT, PUSH_CONCURRENCY
  PUBSUB_PROJECT, PUBSUB_REPORT_TOPIC

An absent APNs key is valid: the push dispatcher then runs unconfigured.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const defaultConfFile = "config.yml"

type (
	// Config is the full service configuration.
	Config struct {
		Port     string `yaml:"port"`
		DBPath   string `yaml:"dbPath"`
		LogLevel string `yaml:"logLevel"`
		APNs     APNs   `yaml:"apns"`
		Push     Push   `yaml:"push"`
		PubSub   PubSub `yaml:"pubsub"`
	}

	// APNs holds provider token credentials. PrivateKeySecret is a Secret
	// Manager resource name, read when PrivateKey is empty.
	APNs struct {
		KeyID            string `yaml:"keyID"`
		TeamID           string `yaml:"teamID"`
		PrivateKey       string `yaml:"privateKey"`
		PrivateKeySecret string `yaml:"privateKeySecret"`
		BundleID         string `yaml:"bundleID"`
		Production       bool   `yaml:"production"`
	}

	// Push tunes delivery.
	Push struct {
		Timeout     time.Duration `yaml:"timeout"`
		Concurrency int           `yaml:"concurrency"`
	}

	// PubSub names where delivery reports go. Empty ProjectID disables it.
	PubSub struct {
		ProjectID   string `yaml:"projectID"`
		ReportTopic string `yaml:"reportTopic"`
	}
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     "8080",
		DBPath:   "./data/ouest.db",
		LogLevel: "info",
		Push: Push{
			Timeout: 10 * time.Second,
		},
		PubSub: PubSub{
			ReportTopic: "push-reports",
		},
	}
}

// Load reads the config file and applies environment overrides. A missing
// default file is fine; a missing file named by CONF_FILE is not.
func Load() (*Config, error) {
	conf := Default()

	confFile := os.Getenv("CONF_FILE")
	explicit := confFile != ""
	if !explicit {
		confFile = defaultConfFile
	}
	b, err := os.ReadFile(confFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &conf); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("error reading config file '%s': %w", confFile, err)
	}

	if err := conf.applyEnv(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.APNs.KeyID, "APNS_KEY_ID")
	setString(&c.APNs.TeamID, "APNS_TEAM_ID")
	setString(&c.APNs.PrivateKey, "APNS_PRIVATE_KEY")
	setString(&c.APNs.PrivateKeySecret, "APNS_PRIVATE_KEY_SECRET")
	setString(&c.APNs.BundleID, "APNS_BUNDLE_ID")
	setString(&c.PubSub.ProjectID, "PUBSUB_PROJECT")
	setString(&c.PubSub.ReportTopic, "PUBSUB_REPORT_TOPIC")

	var err error
	if v, ok := os.LookupEnv("APNS_PRODUCTION"); ok && v != "" {
		b, perr := strconv.ParseBool(v)
		err = multierr.Append(err, wrapEnv("APNS_PRODUCTION", perr))
		c.APNs.Production = b
	}
	if v, ok := os.LookupEnv("PUSH_TIMEOUT"); ok && v != "" {
		d, perr := time.ParseDuration(v)
		err = multierr.Append(err, wrapEnv("PUSH_TIMEOUT", perr))
		c.Push.Timeout = d
	}
	if v, ok := os.LookupEnv("PUSH_CONCURRENCY"); ok && v != "" {
		n, perr := strconv.Atoi(v)
		err = multierr.Append(err, wrapEnv("PUSH_CONCURRENCY", perr))
		c.Push.Concurrency = n
	}
	return err
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Port == "" {
		err = multierr.Append(err, errors.New("port is required"))
	} else if _, perr := strconv.ParseUint(c.Port, 10, 16); perr != nil {
		err = multierr.Append(err, fmt.Errorf("port '%s' is not a valid port number", c.Port))
	}
	if c.DBPath == "" {
		err = multierr.Append(err, errors.New("dbPath is required"))
	}
	if _, perr := logrus.ParseLevel(c.LogLevel); perr != nil {
		err = multierr.Append(err, fmt.Errorf("logLevel: %w", perr))
	}
	if c.Push.Timeout <= 0 {
		err = multierr.Append(err, errors.New("push.timeout must be positive"))
	}
	if c.Push.Concurrency < 0 {
		err = multierr.Append(err, errors.New("push.concurrency must not be negative"))
	}
	if c.APNs.HasKey() {
		if c.APNs.KeyID == "" {
			err = multierr.Append(err, errors.New("apns.keyID is required when a key is set"))
		}
		if c.APNs.TeamID == "" {
			err = multierr.Append(err, errors.New("apns.teamID is required when a key is set"))
		}
		if c.APNs.BundleID == "" {
			err = multierr.Append(err, errors.New("apns.bundleID is required when a key is set"))
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.ReportTopic == "" {
		err = multierr.Append(err, errors.New("pubsub.reportTopic is required when a project is set"))
	}
	return err
}

// HasKey reports whether a signing key is available inline or by secret.
func (a APNs) HasKey() bool {
	return a.PrivateKey != "" || a.PrivateKeySecret != ""
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func wrapEnv(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", key, err)
}
