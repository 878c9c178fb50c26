/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads and validates the agent's configuration from file,
// environment, and CLI flags via spf13/viper, decoding into the typed
// Config struct via viper's mapstructure path.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nabbar/tsdagent/sender"
)

// EnvPrefix is the prefix viper binds environment variables under, e.g.
// TSDAGENT_TSD_HOSTS.
const EnvPrefix = "TSDAGENT"

// HostPort mirrors the (host, port) pairs spec.md §6 uses for tsd_hosts and
// status_listen.
type HostPort struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Config is the fully decoded, defaulted, and validated configuration.
type Config struct {
	CollectorsRoot  string     `mapstructure:"collectors_root"`
	TSDHosts        []HostPort `mapstructure:"tsd_hosts"`
	HTTP            bool       `mapstructure:"http"`
	HTTPAPIPath     string     `mapstructure:"http_api_path"`
	HostTag         string     `mapstructure:"host_tag"`
	NamespacePrefix string     `mapstructure:"namespace_prefix"`

	DedupIntervalSeconds     int `mapstructure:"dedup_interval"`
	ReconnectIntervalSeconds int `mapstructure:"reconnect_interval"`
	MaxQueueDepth            int `mapstructure:"max_queue_depth"`
	ManagerTickSeconds       int `mapstructure:"manager_tick"`

	StatusListen *HostPort `mapstructure:"status_listen"`

	MaxConcurrentSpawns    int  `mapstructure:"max_concurrent_spawns"`
	ShutdownTimeoutSeconds int  `mapstructure:"shutdown_timeout"`
	StatusMetricsEnabled   bool `mapstructure:"status_metrics_enabled"`

	LogFormat string `mapstructure:"log_format"`
}

// Error is returned for any configuration problem; main maps it to exit
// code 2 per spec.md §6.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http", false)
	v.SetDefault("http_api_path", "/api/put")
	v.SetDefault("dedup_interval", 600)
	v.SetDefault("reconnect_interval", 300)
	v.SetDefault("max_queue_depth", 100000)
	v.SetDefault("manager_tick", 15)
	v.SetDefault("max_concurrent_spawns", 8)
	v.SetDefault("shutdown_timeout", 30)
	v.SetDefault("status_metrics_enabled", true)
	v.SetDefault("log_format", "text")
}

// Load reads configuration from file (if non-empty), environment variables
// prefixed EnvPrefix, and any flags bound in flags, in viper's usual
// precedence order (flag > env > file > default).
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, &Error{Reason: err.Error()}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("reading config file %q: %v", file, err)}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("decoding configuration: %v", err)}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CollectorsRoot == "" {
		return &Error{Reason: "collectors_root is required"}
	}
	if len(c.TSDHosts) == 0 {
		return &Error{Reason: "tsd_hosts must contain at least one host"}
	}
	if c.MaxQueueDepth <= 0 {
		return &Error{Reason: "max_queue_depth must be positive"}
	}
	if c.ManagerTickSeconds <= 0 {
		return &Error{Reason: "manager_tick must be positive"}
	}
	return nil
}

// Endpoints converts TSDHosts into sender.Endpoint values.
func (c *Config) Endpoints() []sender.Endpoint {
	out := make([]sender.Endpoint, 0, len(c.TSDHosts))
	for _, h := range c.TSDHosts {
		out = append(out, sender.Endpoint{Host: h.Host, Port: h.Port})
	}
	return out
}

func (c *Config) DedupInterval() time.Duration {
	return time.Duration(c.DedupIntervalSeconds) * time.Second
}

func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSeconds) * time.Second
}

func (c *Config) ManagerTick() time.Duration {
	return time.Duration(c.ManagerTickSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) StatusAddr() string {
	if c.StatusListen == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.StatusListen.Host, c.StatusListen.Port)
}
