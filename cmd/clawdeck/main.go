// ABOUTME: Entry point for the clawdeck gateway client.
// ABOUTME: Connects to configured gateways and exposes chat, status, and directory commands.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/1devstudio/clawdeck/internal/auth"
	"github.com/1devstudio/clawdeck/internal/chat"
	"github.com/1devstudio/clawdeck/internal/config"
	"github.com/1devstudio/clawdeck/internal/fleet"
	"github.com/1devstudio/clawdeck/internal/gateway"
	"github.com/1devstudio/clawdeck/internal/logring"
	"github.com/1devstudio/clawdeck/internal/protocol"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the clawdeck config file.
// Priority: CLAWDECK_CONFIG env var > XDG_CONFIG_HOME/clawdeck/clawdeck.toml > ~/.config/clawdeck/clawdeck.toml
func getConfigPath() string {
	if envPath := os.Getenv("CLAWDECK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "clawdeck.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "clawdeck", "clawdeck.toml")
}

// getDeviceKeyPath returns where the device identity key lives.
// Priority: config device.key_path > XDG_DATA_HOME/clawdeck/device.key > ~/.local/share/clawdeck/device.key
func getDeviceKeyPath(cfg *config.File) string {
	if cfg != nil && cfg.Device.KeyPath != "" {
		return cfg.Device.KeyPath
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "device.key" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "clawdeck", "device.key")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: clawdeck <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  status                       Show connection status for every gateway")
		fmt.Println("  agents                       List agents across gateways")
		fmt.Println("  sessions                     List chat sessions across gateways")
		fmt.Println("  send --gateway ID --session KEY TEXT")
		fmt.Println("                               Send a message and stream the reply")
		fmt.Println("  tail                         Follow chat activity on all gateways")
		fmt.Println("  keygen                       Create or show the device identity key")
		fmt.Println("  init                         Write a starter config file")
		fmt.Println("  version                      Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "status":
		err = runStatus(ctx)
	case "agents":
		err = runAgents(ctx)
	case "sessions":
		err = runSessions(ctx)
	case "send":
		err = runSend(ctx, os.Args[2:])
	case "tail":
		err = runTail(ctx)
	case "keygen":
		err = runKeygen()
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging builds the root logger per config, teeing every record into
// an in-memory ring for diagnostics.
func setupLogging(cfg config.LoggingConfig) (*slog.Logger, *logring.Buffer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}

	buffer := logring.NewBuffer(cfg.BufferSize)
	logger := slog.New(logring.NewHandler(inner, buffer))
	slog.SetDefault(logger)
	return logger, buffer
}

// loadSetup reads config and assembles the fleet manager.
func loadSetup(onChat fleet.ChatUpdateFunc) (*config.File, *fleet.Manager, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, err
	}

	logger, _ := setupLogging(cfg.Logging)

	key, err := auth.LoadOrCreateDeviceKey(getDeviceKeyPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("loading device key: %w", err)
	}

	m := fleet.NewManager(cfg.Profiles, cfg.Bindings, fleet.Options{
		Device:   key,
		DeviceID: cfg.Device.ID,
		Logger:   logger,
		Client: protocol.ClientInfo{
			ID:       "clawdeck",
			Version:  version,
			Platform: runtime.GOOS,
			Mode:     "cli",
		},
		CallTimeout:  cfg.Calls.Timeout,
		Backoff:      gateway.DefaultBackoff(),
		OnChatUpdate: onChat,
	})
	return cfg, m, nil
}


// waitForSettle blocks until every gateway is connected or has stopped
// trying (terminal auth failure), or the timeout passes.
func waitForSettle(ctx context.Context, m *fleet.Manager, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		settled := true
		for id, state := range m.States() {
			if state == gateway.StateConnected {
				continue
			}
			conn, err := m.Client(id)
			if err == nil && state == gateway.StateDisconnected && conn.LastError() != nil {
				continue // terminal failure, not going to change
			}
			settled = false
		}
		if settled {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func runStatus(ctx context.Context) error {
	cfg, m, err := loadSetup(nil)
	if err != nil {
		return err
	}
	defer m.DisconnectAll()

	m.ConnectAll()
	waitForSettle(ctx, m, 10*time.Second)

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, id := range m.GatewayIDs() {
		profile, _ := cfg.Profile(id)
		conn, err := m.Client(id)
		if err != nil {
			continue
		}

		state := conn.State()
		var badge string
		switch state {
		case gateway.StateConnected:
			badge = green("● connected")
		case gateway.StateReconnecting, gateway.StateConnecting:
			badge = yellow("● " + state.String())
		default:
			badge = red("● " + state.String())
		}

		fmt.Printf("%-20s %s  %s\n", profile.DisplayName(), badge, profile.URL())
		if state == gateway.StateConnected {
			server := conn.Server()
			fmt.Printf("  server %s (conn %s)\n", server.Version, server.ConnID)
			if token := conn.DeviceToken(); token != "" {
				if info, ok := auth.Inspect(token); ok && !info.ExpiresAt.IsZero() {
					fmt.Printf("  device token expires %s\n", info.ExpiresAt.Format(time.RFC3339))
				}
			}
		} else if lastErr := conn.LastError(); lastErr != nil {
			fmt.Printf("  %s\n", red(lastErr.Error()))
		}
	}
	return nil
}

func runAgents(ctx context.Context) error {
	_, m, err := loadSetup(nil)
	if err != nil {
		return err
	}
	defer m.DisconnectAll()

	m.ConnectAll()
	waitForSettle(ctx, m, 10*time.Second)

	bold := color.New(color.Bold).SprintFunc()
	for _, id := range m.GatewayIDs() {
		if !m.IsConnected(id) {
			continue
		}
		conn, err := m.Client(id)
		if err != nil {
			continue
		}
		agents, err := conn.AgentsList(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			continue
		}
		fmt.Printf("%s\n", bold(id))
		for _, a := range agents {
			marker := " "
			if a.Default {
				marker = "*"
			}
			name := a.Name
			if name == "" {
				name = a.ID
			}
			fmt.Printf(" %s %-24s %s\n", marker, name, a.Model)
		}
	}
	return nil
}

func runSessions(ctx context.Context) error {
	_, m, err := loadSetup(nil)
	if err != nil {
		return err
	}
	defer m.DisconnectAll()

	m.ConnectAll()
	waitForSettle(ctx, m, 10*time.Second)

	bold := color.New(color.Bold).SprintFunc()
	for _, id := range m.GatewayIDs() {
		if !m.IsConnected(id) {
			continue
		}
		conn, err := m.Client(id)
		if err != nil {
			continue
		}
		sessions, err := conn.SessionsList(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			continue
		}
		fmt.Printf("%s\n", bold(id))
		for _, s := range sessions {
			label := s.Label
			if label == "" {
				label = s.Key
			}
			fmt.Printf("  %-32s %d messages\n", label, s.MessageCount)
		}
	}
	return nil
}

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	gatewayID := fs.String("gateway", "", "gateway id to send through")
	sessionKey := fs.String("session", "main", "chat session key")
	agentID := fs.String("agent", "", "agent id (gateway default when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gatewayID == "" {
		return errors.New("--gateway is required")
	}
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return errors.New("message text is required")
	}

	done := make(chan chat.Message, 1)
	// Written by this goroutine once the send resolves, read by the update
	// callback on the connection's reader goroutine.
	var runID atomic.Value
	runID.Store("")
	_, m, err := loadSetup(func(gw string, msg chat.Message) {
		if gw != *gatewayID || msg.SessionKey != *sessionKey || msg.Role != chat.RoleAssistant {
			return
		}
		if want := runID.Load().(string); want != "" && msg.RunID != want {
			return
		}
		if msg.Streaming() {
			fmt.Printf("\r\033[K%s", msg.Text)
			return
		}
		select {
		case done <- msg:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer m.DisconnectAll()

	if err := m.Connect(*gatewayID); err != nil {
		return err
	}
	waitForSettle(ctx, m, 10*time.Second)

	conn, err := m.Client(*gatewayID)
	if err != nil {
		return err
	}
	if conn.State() != gateway.StateConnected {
		if lastErr := conn.LastError(); lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("gateway %s did not connect", *gatewayID)
	}

	agg, err := m.Aggregator(*gatewayID)
	if err != nil {
		return err
	}
	userMsg := agg.AppendUser(*sessionKey, text)

	result, err := conn.ChatSend(ctx, protocol.ChatSendParams{
		SessionKey: *sessionKey,
		Text:       text,
		AgentID:    *agentID,
	})
	if err != nil {
		agg.MarkUserFailed(userMsg.ID, err)
		return err
	}
	agg.MarkUserSent(userMsg.ID, result.RunID)
	runID.Store(result.RunID)

	select {
	case msg := <-done:
		fmt.Printf("\r\033[K%s\n", msg.Text)
		if msg.Status == chat.StatusError {
			return fmt.Errorf("run failed: %s", msg.Error)
		}
		return nil
	case <-ctx.Done():
		// Best effort abort on Ctrl-C so the run does not keep burning.
		abortCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = conn.ChatAbort(abortCtx, protocol.ChatAbortParams{SessionKey: *sessionKey, RunID: runID.Load().(string)})
		return ctx.Err()
	}
}

func runTail(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.Faint).SprintFunc()

	_, m, err := loadSetup(func(gw string, msg chat.Message) {
		prefix := cyan(fmt.Sprintf("[%s/%s]", gw, msg.SessionKey))
		switch msg.Status {
		case chat.StatusError:
			fmt.Printf("%s %s\n", prefix, color.RedString("error: %s", msg.Error))
		case chat.StatusComplete:
			fmt.Printf("%s %s\n", prefix, msg.Text)
		default:
			fmt.Printf("%s %s\n", prefix, gray(msg.Text))
		}
	})
	if err != nil {
		return err
	}
	defer m.DisconnectAll()

	m.ConnectAll()
	fmt.Println("Following chat activity. Ctrl-C to stop.")
	<-ctx.Done()
	return nil
}

func runKeygen() error {
	var cfg *config.File
	if loaded, err := config.Load(getConfigPath()); err == nil {
		cfg = loaded
	}

	path := getDeviceKeyPath(cfg)
	key, err := auth.LoadOrCreateDeviceKey(path)
	if err != nil {
		return err
	}

	fmt.Printf("Device key:  %s\n", path)
	fmt.Printf("Fingerprint: %s\n", key.Fingerprint())
	fmt.Printf("Public key:  %s\n", key.PublicKeyString())
	return nil
}

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := `# clawdeck configuration

[[profiles]]
id = "local"
name = "Local gateway"
host = "127.0.0.1"
port = 9100
tls = false
token = "${CLAWDECK_TOKEN}"

[[bindings]]
gateway = "local"
agent = "claude"
position = 1

[logging]
level = "info"
format = "text"

[calls]
timeout = "30s"
`
	if err := os.WriteFile(path, []byte(starter), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Wrote starter config to %s\n", path)
	fmt.Println("Set CLAWDECK_TOKEN or edit the token field, then run: clawdeck status")
	return nil
}
