// Gdbrsp — CLI entry point.
//
// This tool hosts a GDB remote serial protocol stub session: framing,
// checksums and the +/- acknowledgment handshake over a byte transport. The
// transport is either a plain TCP connection (serve role) or a WebRTC
// DataChannel reached through WebSocket signaling (host/bridge roles), so a
// debugger front-end can attach across NATs.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -mode, -addr, -signalAddr, -signalUrl, -port) or a TOML
// config file (-config).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/kaelos/gdbrsp/internal/config"
	"github.com/kaelos/gdbrsp/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: serve, host or bridge")
	mode := flag.String("mode", "", "Reply mode for stub roles: echo or repl")
	addr := flag.String("addr", "", "TCP listen address (serve role)")
	signalAddr := flag.String("signalAddr", "", "WebSocket signaling listen address (host role)")
	signalURL := flag.String("signalUrl", "", "WebSocket signaling URL to connect to (bridge role)")
	port := flag.Int("port", 0, "Local TCP port for the debugger front-end (bridge role), 1~65535")
	configPath := flag.String("config", "", "Path to a TOML config file")
	maxPayload := flag.Int("maxPayload", 0, "Per-packet decoded payload cap in bytes (0 = default)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	pterm.Info.Println(fmt.Sprintf("Gdbrsp — v%s", version))
	pterm.Println()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags win over the file.
	if *role != "" {
		cfg.Role = config.Role(*role)
	}
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *signalAddr != "" {
		cfg.SignalAddr = *signalAddr
	}
	if *signalURL != "" {
		cfg.SignalURL = *signalURL
	}
	if *port != 0 {
		cfg.LocalPort = *port
	}
	if *maxPayload != 0 {
		cfg.MaxPayload = *maxPayload
	}
	if *debugMode {
		cfg.Debug = true
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	// No -role flag and no config file → interactive mode.
	if *role == "" && *configPath == "" {
		runInteractive(ctx, cfg)
		return
	}

	if err := config.Validate(cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	run(ctx, cfg)
}

// run dispatches to the role entry points and exits non-zero on failure.
func run(ctx context.Context, cfg config.Config) {
	var err error
	switch cfg.Role {
	case config.RoleServe:
		err = runServe(ctx, cfg)
	case config.RoleHost:
		err = runHost(ctx, cfg)
	case config.RoleBridge:
		err = runBridge(ctx, cfg)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// runInteractive falls back to prompts when neither -role nor -config is
// given.
func runInteractive(ctx context.Context, cfg config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Serve  — Stub on a local TCP port",
			"Host   — Stub behind WebRTC signaling",
			"Bridge — Expose a remote stub on a local TCP port",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Serve"):
		cfg.Role = config.RoleServe
		cfg.Addr = fmt.Sprintf(":%d", askPort("TCP port to listen on (1 ~ 65535)"))
		cfg.Mode = askMode()

	case strings.HasPrefix(role, "Host"):
		cfg.Role = config.RoleHost
		cfg.SignalAddr = ":0"
		cfg.Mode = askMode()

	default:
		cfg.Role = config.RoleBridge
		cfg.SignalURL = askURL()
		cfg.LocalPort = askPort("Local port for the debugger front-end (1 ~ 65535)")
	}

	run(ctx, cfg)
}

// askMode prompts for the reply mode.
func askMode() config.Mode {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Echo — reply $#00 (unsupported feature) to everything",
			"Repl — type each reply by hand",
		}).
		WithDefaultText("Select the reply mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Repl") {
		return config.ModeRepl
	}
	return config.ModeEcho
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling URL (e.g. ws://host:port/ws?pin=123456)").
			Show()

		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "ws://") || strings.HasPrefix(trimmed, "wss://") {
			pterm.Println()
			return trimmed
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a ws:// or wss:// URL")
	}
}
