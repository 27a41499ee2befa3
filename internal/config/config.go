// Package config loads the optional TOML configuration for the gdbrsp CLI.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Role selects how the process participates in a debug session.
type Role string

const (
	// RoleServe hosts the stub on a local TCP port.
	RoleServe Role = "serve"
	// RoleHost hosts the stub behind WebRTC signaling.
	RoleHost Role = "host"
	// RoleBridge exposes a remote stub on a local TCP port.
	RoleBridge Role = "bridge"
)

// Mode selects how inbound packets are answered by the stub roles.
type Mode string

const (
	// ModeEcho replies the empty "unsupported feature" packet to
	// everything.
	ModeEcho Mode = "echo"
	// ModeRepl prompts interactively for each reply.
	ModeRepl Mode = "repl"
)

// Config stores all parameters of a gdbrsp run, whether gathered from flags,
// a TOML file, or interactive prompts.
type Config struct {
	Role       Role   `toml:"role"`
	Mode       Mode   `toml:"mode"`
	Addr       string `toml:"addr"`        // serve: TCP listen address
	SignalAddr string `toml:"signal_addr"` // host: WS signaling listen address
	SignalURL  string `toml:"signal_url"`  // bridge: WS signaling URL
	LocalPort  int    `toml:"local_port"`  // bridge: local TCP port for the front-end
	MaxPayload int    `toml:"max_payload"` // per-packet decoded payload cap, bytes
	Debug      bool   `toml:"debug"`
}

// Default returns the configuration used when neither flags nor a file say
// otherwise.
func Default() Config {
	return Config{
		Role:       RoleServe,
		Mode:       ModeEcho,
		Addr:       ":1337",
		SignalAddr: ":0",
	}
}

// LoadFile reads a TOML config file over the defaults and validates it.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations no role can run with.
func Validate(cfg Config) error {
	switch cfg.Role {
	case RoleServe:
		if cfg.Addr == "" {
			return fmt.Errorf("serve role requires addr")
		}
	case RoleHost:
		if cfg.SignalAddr == "" {
			return fmt.Errorf("host role requires signal_addr")
		}
	case RoleBridge:
		if cfg.SignalURL == "" {
			return fmt.Errorf("bridge role requires signal_url")
		}
		if cfg.LocalPort < 1 || cfg.LocalPort > 65535 {
			return fmt.Errorf("bridge role requires local_port in 1~65535")
		}
	default:
		return fmt.Errorf("invalid role %q: must be serve, host or bridge", cfg.Role)
	}

	switch cfg.Mode {
	case ModeEcho, ModeRepl:
	default:
		return fmt.Errorf("invalid mode %q: must be echo or repl", cfg.Mode)
	}

	if cfg.MaxPayload < 0 {
		return fmt.Errorf("max_payload must not be negative")
	}
	return nil
}
