package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/prefd/prefd/internal/api"
	"github.com/prefd/prefd/internal/bridge"
	"github.com/prefd/prefd/internal/config"
	"github.com/prefd/prefd/internal/prefs"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the prefd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running prefd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show prefd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "prefd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// openStore builds the preference store selected by config.
func openStore(cfg config.Config) (prefs.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return prefs.OpenSQLite(cfg.Storage.DataDir, cfg.Settings.Domain)
	case "file":
		name := fmt.Sprintf("settings-%s.json", cfg.Settings.Domain)
		return prefs.NewFileStore(filepath.Join(cfg.Storage.DataDir, name)), nil
	case "memory":
		return prefs.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "prefd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API bearer token exists before clients need it.
	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			warnf("prefd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		warnf("prefd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the preference store and install the settings bridge over it.
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
	}()

	notifier := bridge.NewNotifier()
	accessor, err := bridge.New(store, bridge.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("installing settings bridge: %w", err)
	}
	slog.Info("settings bridge installed",
		"backend", cfg.Storage.Backend,
		"domain", cfg.Settings.Domain,
		"constants", len(accessor.Constants()),
	)

	// Forward external store changes (another process editing the file)
	// into the change hub.
	if watcher, ok := store.(prefs.Watcher); ok {
		if err := notifier.Forward(ctx, watcher); err != nil {
			return fmt.Errorf("watching store for external changes: %w", err)
		}
		slog.Info("external change watch active")
	}

	registry := bridge.NewRegistry()
	if err := registry.Register(bridge.NewSettingsModule(accessor)); err != nil {
		return fmt.Errorf("registering settings module: %w", err)
	}

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Accessor: accessor,
		Registry: registry,
		Notifier: notifier,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build the MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Accessor: accessor,
		Registry: registry,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "prefd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		// Graceful shutdown with timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("MCP server started (stdio transport)")
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		failf("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		failf("prefd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		failf("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		failf("could not stop prefd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	successf("Sent stop signal to prefd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		failf("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		statusRow("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			statusRow("Server", "running on port %d", cfg.Server.Port)
		} else {
			statusRow("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	statusRow("Backend", "%s", cfg.Storage.Backend)
	statusRow("Domain", "%s", cfg.Settings.Domain)
	statusRow("Data dir", "%s", cfg.Storage.DataDir)

	// Show the stored key count if the server is running.
	apiToken, tokenErr := config.GetAPIToken()
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		settingsResp, err := apiGet(client, serverURL+"/settings", apiToken)
		if err == nil {
			var values map[string]json.RawMessage
			if json.NewDecoder(settingsResp.Body).Decode(&values) == nil {
				statusRow("Settings", "%d keys", len(values))
			}
			settingsResp.Body.Close()
		}
	}

	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
