package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/andrej220/composerun/pkg/composer"
)

const (
	serviceName       = "composerun"
	defaultConfigFile = "composerun.yaml"
	tokenEnvVar       = "COMPOSER_BEARER_TOKEN"
)

// Config is the YAML file describing which environment to talk to and
// how patiently to poll it.
type Config struct {
	Project     string `yaml:"project" json:"project" validate:"required"`
	Location    string `yaml:"location" json:"location" validate:"required"`
	Environment string `yaml:"environment" json:"environment" validate:"required"`

	Poll struct {
		IntervalSec int `yaml:"intervalSec" json:"intervalSec" validate:"gte=0"`
		TimeoutSec  int `yaml:"timeoutSec" json:"timeoutSec" validate:"gte=0"`
	} `yaml:"poll" json:"poll"`

	// Retry wraps the HTTP client with backoff and a circuit breaker.
	Retry bool `yaml:"retry" json:"retry"`
}

var validate = validator.New()

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Env() composer.Environment {
	return composer.Environment{
		Project:  c.Project,
		Location: c.Location,
		Name:     c.Environment,
	}
}

func (c *Config) PollOptions() composer.PollOptions {
	return composer.PollOptions{
		Interval: time.Duration(c.Poll.IntervalSec) * time.Second,
		Timeout:  time.Duration(c.Poll.TimeoutSec) * time.Second,
	}
}
