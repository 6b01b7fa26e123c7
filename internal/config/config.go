package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/harukana/vnarc/internal/arc"
)

type Config struct {
	Output       string `mapstructure:"output"`
	Workers      int    `mapstructure:"workers"`
	NameEncoding string `mapstructure:"name_encoding"`
	CryptXOR     bool   `mapstructure:"crypt_xor"`
	CryptSwap    bool   `mapstructure:"crypt_swap"`
	CryptZlib    bool   `mapstructure:"crypt_zlib"`
	UnwrapMDF    bool   `mapstructure:"unwrap_mdf"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
}

var validEncodings = map[string]bool{
	"auto": true, "utf8": true, "utf-8": true,
	"cp932": true, "sjis": true, "shift-jis": true,
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	// Set defaults
	viper.SetDefault("output", ".")
	viper.SetDefault("workers", 4)
	viper.SetDefault("name_encoding", "auto")
	viper.SetDefault("crypt_xor", true)
	viper.SetDefault("crypt_swap", true)
	viper.SetDefault("crypt_zlib", true)
	viper.SetDefault("unwrap_mdf", true)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	// Config file handling
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName("vnarc")
		viper.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !validEncodings[cfg.NameEncoding] {
		return nil, fmt.Errorf("invalid name_encoding %q", cfg.NameEncoding)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &cfg, nil
}

// Options projects the configuration onto the engine's options bundle.
func (c *Config) Options() arc.Options {
	return arc.Options{
		CryptXOR:     c.CryptXOR,
		CryptSwap:    c.CryptSwap,
		CryptZlib:    c.CryptZlib,
		UnwrapMDF:    c.UnwrapMDF,
		NameEncoding: c.NameEncoding,
	}
}
