package main

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/diggernet/XYModem/xmodem"
)

// Config is the YAML-file shape read alongside the CLI flags. Every field is
// optional; zero values leave the flag values from main.go in place. A
// non-empty field replaces the corresponding flag value, even when that
// flag was given explicitly on the command line.
type Config struct {
	Transport string `yaml:"transport"` // "serial", "ssh" or "local"

	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`

	SSH struct {
		Host     string `yaml:"host"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"ssh"`

	OutDir        string `yaml:"out_dir"`
	OverrunPolicy string `yaml:"overrun_policy"`
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseOverrunPolicy(name string) xmodem.OverrunPolicy {
	switch name {
	case "error":
		return xmodem.OverrunError
	case "accept":
		return xmodem.OverrunAccept
	case "mixed":
		return xmodem.OverrunMixed
	default:
		return xmodem.OverrunIgnore
	}
}
