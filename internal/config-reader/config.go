// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package config reads the TOML configuration of baseio-server and
// baseio-cli, and the BASEIO_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/komkom/toml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"
)

type ConfigBool bool

type ServerConfig struct {
	Protocol         string `json:"protocol,omitempty"`
	ListenAddress    string `json:"lis,omitempty"`
	WebsocketAddress string `json:"wslis,omitempty"`
	MetricsAddress   string `json:"debuglis,omitempty"`

	ReusePort ConfigBool `json:"reuseport"`
	Echo      ConfigBool `json:"echo"`

	IdleTimeout     string `json:"idle,omitempty"`
	MaxConns        uint   `json:"maxconns,omitempty"`
	MaxBufferSize   uint   `json:"maxbuf,omitempty"`
	MaxFrameSize    uint   `json:"maxframe,omitempty"`
	HeaderTableSize uint   `json:"headertable,omitempty"`

	Presence map[string]interface{} `json:"-"`
}

type CliConfig struct {
	Addr     string `json:"addr,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Timeout  string `json:"timeout,omitempty"`

	Presence map[string]interface{} `json:"-"`
}

type MergedConfig struct {
	Server ServerConfig `json:"baseio-server"`
	Cli    CliConfig    `json:"baseio-cli"`
}

const (
	serverSection = "baseio-server"
	cliSection    = "baseio-cli"
)

func (config ServerConfig) Has(flagname string) bool {
	_, ok := config.Presence[flagname]
	return ok
}

func (config CliConfig) Has(flagname string) bool {
	_, ok := config.Presence[flagname]
	return ok
}

// Idle parses IdleTimeout. An empty value means no timeout.
func (config ServerConfig) Idle() (time.Duration, error) {
	if config.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(config.IdleTimeout)
	if err != nil {
		return 0, errors.Wrap(err, "config: invalid idle timeout")
	}
	return d, nil
}

// ReadConfigServer reads the [baseio-server] section of the file at
// configPath. The bool is false if there is no such file.
func ReadConfigServer(log kitlog.Logger, fs afero.Fs, configPath string) (ServerConfig, bool, error) {
	conf, presence, found, err := readMerged(log, fs, configPath, serverSection)
	if err != nil || !found {
		conf.Server.Presence = make(map[string]interface{})
		return conf.Server, found, err
	}
	conf.Server.Presence = presence
	return conf.Server, true, nil
}

// ReadConfigCli reads the [baseio-cli] section of the file at configPath.
func ReadConfigCli(log kitlog.Logger, fs afero.Fs, configPath string) (CliConfig, bool, error) {
	conf, presence, found, err := readMerged(log, fs, configPath, cliSection)
	if err != nil || !found {
		conf.Cli.Presence = make(map[string]interface{})
		return conf.Cli, found, err
	}
	conf.Cli.Presence = presence
	return conf.Cli, true, nil
}

func readMerged(log kitlog.Logger, fs afero.Fs, configPath, section string) (MergedConfig, map[string]interface{}, bool, error) {
	var conf MergedConfig

	data, err := afero.ReadFile(fs, configPath)
	if err != nil {
		level.Info(log).Log("event", "read config", "msg", "no config detected", "path", configPath)
		return conf, nil, false, nil
	}

	level.Info(log).Log("event", "read config", "msg", "config detected", "path", configPath)

	// 1) first we unmarshal into struct for type checks
	decoder := json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := decoder.Decode(&conf); err != nil {
		return conf, nil, false, errors.Wrapf(err, "config: decode %s into struct", configPath)
	}

	// 2) then we unmarshal into a map for presence check (to make sure bools are treated correctly)
	presence := make(map[string]interface{})
	decoder = json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := decoder.Decode(&presence); err != nil {
		return conf, nil, false, errors.Wrapf(err, "config: decode %s into presence map", configPath)
	}

	sectionPresence, ok := presence[section].(map[string]interface{})
	if !ok {
		level.Warn(log).Log("event", "read config", "msg", "no ["+section+"] detected in config file - not reading anything from it", "path", configPath)
		sectionPresence = make(map[string]interface{})
	}
	return conf, sectionPresence, true, nil
}

// ReadEnvironmentVariables overrides config with the BASEIO_* variables that
// are set.
func ReadEnvironmentVariables(config *ServerConfig) error {
	if config.Presence == nil {
		config.Presence = make(map[string]interface{})
	}

	if val := os.Getenv("BASEIO_PROTOCOL"); val != "" {
		config.Protocol = val
		config.Presence["protocol"] = true
	}
	if val := os.Getenv("BASEIO_LISTEN_ADDRESS"); val != "" {
		config.ListenAddress = val
		config.Presence["lis"] = true
	}
	if val := os.Getenv("BASEIO_WS_ADDRESS"); val != "" {
		config.WebsocketAddress = val
		config.Presence["wslis"] = true
	}
	if val := os.Getenv("BASEIO_PROMETHEUS_ADDRESS"); val != "" {
		config.MetricsAddress = val
		config.Presence["debuglis"] = true
	}
	if val := os.Getenv("BASEIO_REUSEPORT"); val != "" {
		config.ReusePort = ConfigBool(booleanIsTrue(val))
		config.Presence["reuseport"] = true
	}
	if val := os.Getenv("BASEIO_ECHO"); val != "" {
		config.Echo = ConfigBool(booleanIsTrue(val))
		config.Presence["echo"] = true
	}
	if val := os.Getenv("BASEIO_IDLE_TIMEOUT"); val != "" {
		if _, err := time.ParseDuration(val); err != nil {
			return errors.Wrap(err, "config: parse BASEIO_IDLE_TIMEOUT")
		}
		config.IdleTimeout = val
		config.Presence["idle"] = true
	}
	if val := os.Getenv("BASEIO_MAX_CONNS"); val != "" {
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return errors.Wrap(err, "config: parse BASEIO_MAX_CONNS")
		}
		config.MaxConns = uint(n)
		config.Presence["maxconns"] = true
	}
	return nil
}

// ReadConfigAndEnv reads the file at configPath and applies the environment
// on top of it.
func ReadConfigAndEnv(log kitlog.Logger, fs afero.Fs, configPath string) (ServerConfig, error) {
	config, _, err := ReadConfigServer(log, fs, configPath)
	if err != nil {
		return config, err
	}
	err = ReadEnvironmentVariables(&config)
	return config, err
}

func (booly ConfigBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(booly))
}

func (booly *ConfigBool) UnmarshalJSON(b []byte) error {
	// unmarshal into interface{} first, as a bool can't be unmarshaled into a string
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "unmarshal config bool")
	}

	// a proper boolean or a boolish string (e.g. "true" or "1")
	var temp bool
	switch val := v.(type) {
	case bool:
		temp = val
	case string:
		temp = booleanIsTrue(val)
		if !temp && val != "false" && val != "0" && val != "no" && val != "off" {
			return errors.Errorf("non-boolean string %q found when unmarshaling boolish values", val)
		}
	default:
		return errors.Errorf("unexpected %T for a boolish value", v)
	}
	*booly = ConfigBool(temp)
	return nil
}

func booleanIsTrue(s string) bool {
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
