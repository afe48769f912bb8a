// Package config manages application configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quantfeed/tradecore/internal/schema"
	"github.com/quantfeed/tradecore/internal/session"
)

// ExchangeConfig carries the websocket endpoint and credentials for one
// exchange connection.
type ExchangeConfig struct {
	Name              string  `yaml:"name"`
	URL               string  `yaml:"url"`
	PublicKey         string  `yaml:"publicKey"`
	SecretKey         string  `yaml:"secretKey"`
	CommandsPerSecond float64 `yaml:"commandsPerSecond"`
	CommandBurst      int     `yaml:"commandBurst"`
}

// MarketConfig names one instrument to trade and the candle intervals to
// follow for it.
type MarketConfig struct {
	Pair      string   `yaml:"pair"`
	Intervals []string `yaml:"intervals"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig is the unified application configuration sourced from YAML.
type AppConfig struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Markets  []MarketConfig `yaml:"markets"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads and validates an AppConfig from the provided YAML file.
// Credentials can be supplied through TRADECORE_PUBLIC_KEY and
// TRADECORE_SECRET_KEY instead of the file.
func Load(configPath string) (AppConfig, error) {
	candidate := filepath.Clean(strings.TrimSpace(configPath))
	bytes, err := os.ReadFile(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return AppConfig{}, fmt.Errorf("open app config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c *AppConfig) normalise() {
	c.Exchange.Name = strings.ToLower(strings.TrimSpace(c.Exchange.Name))
	c.Exchange.URL = strings.TrimSpace(c.Exchange.URL)

	if v := strings.TrimSpace(os.Getenv("TRADECORE_PUBLIC_KEY")); v != "" {
		c.Exchange.PublicKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADECORE_SECRET_KEY")); v != "" {
		c.Exchange.SecretKey = v
	}

	if c.Exchange.CommandsPerSecond <= 0 {
		c.Exchange.CommandsPerSecond = 10
	}
	if c.Exchange.CommandBurst <= 0 {
		c.Exchange.CommandBurst = 1
	}

	for i := range c.Markets {
		c.Markets[i].Pair = strings.ToUpper(strings.TrimSpace(c.Markets[i].Pair))
		for j, code := range c.Markets[i].Intervals {
			c.Markets[i].Intervals[j] = strings.ToUpper(strings.TrimSpace(code))
		}
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	if c.Exchange.Name == "" {
		return fmt.Errorf("exchange name required")
	}
	if c.Exchange.URL == "" {
		return fmt.Errorf("exchange url required")
	}
	if !strings.HasPrefix(c.Exchange.URL, "ws://") && !strings.HasPrefix(c.Exchange.URL, "wss://") {
		return fmt.Errorf("exchange url must be a websocket endpoint")
	}
	if c.Exchange.PublicKey == "" || c.Exchange.SecretKey == "" {
		return fmt.Errorf("exchange credentials required")
	}

	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market required")
	}
	for _, m := range c.Markets {
		if err := schema.Pair(m.Pair).Validate(); err != nil {
			return fmt.Errorf("market %q: %w", m.Pair, err)
		}
		for _, code := range m.Intervals {
			if _, ok := schema.IntervalFromCode(code); !ok {
				return fmt.Errorf("market %q: unknown interval %q", m.Pair, code)
			}
		}
	}

	return nil
}

// SessionConfig maps the exchange section onto session connection settings.
func (c AppConfig) SessionConfig() session.Config {
	return session.Config{
		Exchange:          c.Exchange.Name,
		URL:               c.Exchange.URL,
		PublicKey:         c.Exchange.PublicKey,
		SecretKey:         c.Exchange.SecretKey,
		CommandsPerSecond: c.Exchange.CommandsPerSecond,
		CommandBurst:      c.Exchange.CommandBurst,
	}
}

// Market resolves one market entry into schema types. The interval codes
// were validated at load time.
func (m MarketConfig) Market() (schema.Pair, []schema.Interval) {
	intervals := make([]schema.Interval, 0, len(m.Intervals))
	for _, code := range m.Intervals {
		if iv, ok := schema.IntervalFromCode(code); ok {
			intervals = append(intervals, iv)
		}
	}
	return schema.Pair(m.Pair), intervals
}
