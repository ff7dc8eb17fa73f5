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

	"github.com/kalambet/chathub/internal/api"
	"github.com/kalambet/chathub/internal/config"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and reminder scheduler (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running chathub server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chathub server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "chathub.pid")
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

// localURL is the base URL the CLI uses to reach a local server.
func localURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "chathub version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// With --mcp, stdout carries the MCP protocol, so logs stay on stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	if _, err := config.EnsureAPIToken(&cfg); err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(localURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("chathub is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("chathub is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, a, withMCP)
}

// serve runs the HTTP server, the scheduler, the outbox worker and the
// optional MCP stdio server until ctx is cancelled or one of them fails.
func serve(ctx context.Context, a *app, withMCP bool) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(a.mcp)
		g.Go(func() error {
			err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "chathub listening on %s (%s)\n", srv.Addr, a.cfg.Messenger.Platform)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("chathub is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop chathub (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to chathub (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	c := &apiClient{baseURL: localURL(cfg), token: cfg.API.Token, httpClient: client}

	resp, err := c.get(ctx, "/status")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var st api.StatusResponse
		if err := decodeJSON(resp, &st); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running on %s", cfg.Server.Addr())
			printStatus("Commands", "%s", strings.Join(st.Commands, ", "))
			for _, name := range []string{"todos", "reminders", "email", "history", "outbox"} {
				printStatus("  "+name, "%s", onOff(st.Features[name]))
			}
			if st.Outbox != nil {
				printStatus("Outbox", "%d pending, %d failed, %d delivered",
					st.Outbox["pending"]+st.Outbox["running"], st.Outbox["failed"], st.Outbox["completed"])
			}
		}
	}

	printStatus("Platform", "%s", cfg.Messenger.Platform)
	printStatus("Storage", "%s (%s)", cfg.Storage.DataDir, cfg.Storage.Format)
	printStatus("Scheduler", "every %s, timezone %s", cfg.Scheduler.PollInterval, cfg.Scheduler.Timezone)
	return nil
}

func onOff(b bool) string {
	if b {
		return render(successStyle, "enabled")
	}
	return render(mutedStyle, "disabled")
}
