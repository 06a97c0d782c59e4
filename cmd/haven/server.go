package main

import (
	"context"
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

	"github.com/havenchat/haven/internal/api"
	"github.com/havenchat/haven/internal/chat"
	"github.com/havenchat/haven/internal/classifier"
	"github.com/havenchat/haven/internal/config"
	"github.com/havenchat/haven/internal/journal"
	"github.com/havenchat/haven/internal/ollama"
	"github.com/havenchat/haven/internal/profile"
	"github.com/havenchat/haven/internal/responder"
	"github.com/havenchat/haven/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the haven server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running haven server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show haven system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "haven.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "haven version %s\n", version)

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

	apiToken, err := config.APIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("haven is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("haven is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness and pull missing models.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	models := []string{cfg.Ollama.CasualModel, cfg.Ollama.SupportModel, cfg.Ollama.ProfileModel}
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.RouterModel, models, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the turn pipeline.
	profileMgr := profile.NewManager(store, slog.Default())
	pipeline := chat.NewPipeline(
		classifier.New(ollamaClient, cfg.Ollama.RouterModel, slog.Default()),
		responder.New(ollamaClient, cfg.Ollama.CasualModel, cfg.Ollama.SupportModel, slog.Default()),
		profileMgr,
		profile.NewUpdater(ollamaClient, cfg.Ollama.ProfileModel, profileMgr, slog.Default()),
		store,
		slog.Default(),
	)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Profiles: profileMgr,
		Pipeline: pipeline,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start the journal worker.
	worker := journal.NewWorker(store, 500*time.Millisecond, slog.Default())
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Profiles: profileMgr,
		Pipeline: pipeline,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "haven listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("haven is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop haven (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to haven (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	// Probe the server and Ollama concurrently; both are just reachability checks.
	var serverStatus, ollamaStatus string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, "GET", serverURL+"/health", nil)
		if err != nil {
			serverStatus = "stopped"
			return nil
		}
		resp, err := client.Do(req)
		if err != nil {
			serverStatus = "stopped"
			return nil
		}
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverStatus = fmt.Sprintf("running on port %d", cfg.Server.Port)
		} else {
			serverStatus = fmt.Sprintf("error (HTTP %d)", resp.StatusCode)
		}
		return nil
	})
	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, "GET", cfg.Ollama.BaseURL+"/api/version", nil)
		if err != nil {
			ollamaStatus = "not running"
			return nil
		}
		resp, err := client.Do(req)
		if err != nil {
			ollamaStatus = "not running"
			return nil
		}
		resp.Body.Close()
		ollamaStatus = fmt.Sprintf("running at %s", cfg.Ollama.BaseURL)
		return nil
	})
	g.Wait()

	printStatus("Server", "%s", serverStatus)
	printStatus("Ollama", "%s", ollamaStatus)
	printStatus("Router model", "%s", cfg.Ollama.RouterModel)
	printStatus("Casual model", "%s", cfg.Ollama.CasualModel)
	printStatus("Support model", "%s", cfg.Ollama.SupportModel)
	printStatus("Profile model", "%s", cfg.Ollama.ProfileModel)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
