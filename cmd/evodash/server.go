package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
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
	"golang.org/x/net/netutil"

	"github.com/kalambet/evodash/internal/api"
	"github.com/kalambet/evodash/internal/config"
	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/generator"
	"github.com/kalambet/evodash/internal/logging"
	"github.com/kalambet/evodash/internal/opslog"
	"github.com/kalambet/evodash/internal/orchestrator"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
	"github.com/kalambet/evodash/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the evodash server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running evodash server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show evodash system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the evodash MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "evodash.pid")
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

// components holds every long-lived handle the server and MCP commands share.
// close releases them in reverse order of acquisition.
type components struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *storage.Store
	spec         *specstore.Store
	registry     *discovery.Registry
	generator    *generator.Generator
	ops          *opslog.Log
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing: %v\n", err)
		}
	}
}

// openComponents wires storage, the spec document, discovery, the generator
// and the orchestrator. Logs go to stderr so stdout stays free for MCP.
func openComponents(ctx context.Context, cfg config.Config) (*components, error) {
	c := &components{cfg: cfg}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	if logCloser != nil {
		c.closers = append(c.closers, logCloser.Close)
	}
	slog.SetDefault(logger)
	c.logger = logger

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	c.closers = append(c.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTelemetry(sctx)
	})

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	c.closers = append(c.closers, store.Close)
	c.store = store

	spec, err := specstore.Open(cfg.Spec.Path, specstore.WithRecorder(store), specstore.WithLogger(logger))
	if err != nil {
		c.close()
		return nil, fmt.Errorf("opening spec: %w", err)
	}
	created, err := spec.Init()
	if err != nil {
		c.close()
		return nil, fmt.Errorf("initializing spec: %w", err)
	}
	if created {
		logger.Info("created spec document", "path", spec.Path())
	}
	c.spec = spec

	componentsDir, err := filepath.Abs(cfg.Components.Dir)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("resolving components dir: %w", err)
	}
	scanner := discovery.NewScanner(componentsDir, cfg.Components.Ignore,
		discovery.WithSpec(spec), discovery.WithLogger(logger))
	c.registry = discovery.NewRegistry(scanner, logger)
	if _, err := c.registry.Refresh(ctx); err != nil {
		logger.Warn("initial component scan failed", "dir", componentsDir, "error", err)
	}

	c.generator = generator.New(generator.Config{
		Command:       cfg.Generator.Command,
		Args:          cfg.GeneratorArgs(),
		Timeout:       cfg.GeneratorTimeout(),
		ComponentsDir: componentsDir,
	}, logger)

	c.ops = opslog.New(cfg.OpsLog.Capacity)
	c.orchestrator = orchestrator.New(store, c.generator, spec, c.registry, c.ops, logger)
	return c, nil
}

// ensureGenerator reports whether the generator command can be found. A
// missing command is not fatal: requests fail individually until it appears.
func ensureGenerator(gen *generator.Generator, w io.Writer) {
	fmt.Fprintf(w, "Checking generator %q...\n", gen.Command())
	if err := gen.Check(); err != nil {
		printWarning("generator unavailable: %v", err)
		printWarning("feature requests will fail until %q is on PATH (config key generator.command)", gen.Command())
		return
	}
	fmt.Fprintf(w, "Generator ready (timeout %s)\n", gen.Timeout())
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "evodash version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Refuse to start twice. Any answer from the health endpoint means a
	// server already owns the port, even a degraded one.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/api/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("evodash is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("evodash is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ensureGenerator(c.generator, os.Stderr)

	if cfg.Server.APIToken == "" {
		slog.Warn("no API token configured; mutating routes are unauthenticated")
	}

	handler := api.NewRouter(api.Deps{
		Store:     c.store,
		Spec:      c.spec,
		Registry:  c.registry,
		Submitter: c.orchestrator,
		Generator: c.generator,
		Ops:       c.ops,
		Token:     cfg.Server.APIToken,
		Limiter:   api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Logger:    c.logger,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	// No WriteTimeout: submissions are held open for the whole generator run.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "evodash listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// In-flight generations are not cancelled; wait for them to finish or
	// time out before the store is closed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GeneratorTimeout()+10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     c.store,
		Spec:      c.spec,
		Registry:  c.registry,
		Submitter: c.orchestrator,
		Version:   version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
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
		printError("evodash is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop evodash (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to evodash (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    serverURL(cfg),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	health, err := fetchHealth(ctx, client)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "%s on port %d", colorize(statusColor(health.Status), health.Status), cfg.Server.Port)
		for _, name := range sortedKeys(health.Services) {
			printStatus("  "+name, "%s", health.Services[name])
		}
		var data api.DashboardData
		if resp, err := client.get(ctx, "/api/dashboard/data"); err == nil {
			if decodeJSON(resp, &data) == nil {
				s := data.Stats
				printStatus("Requests", "%d total, %d completed, %d failed, %d pending", s.TotalRequests, s.Completed, s.Failed, s.Pending)
				printStatus("Features", "%d (%d active)", s.Features, s.ActiveFeatures)
				if data.Spec != nil {
					printStatus("Spec", "v%s", data.Spec.Version)
				}
			}
		}
	}

	printStatus("Generator", "%s (timeout %s)", cfg.Generator.Command, cfg.GeneratorTimeout())
	printStatus("Components", "%s", cfg.Components.Dir)
	printStatus("Spec file", "%s", cfg.Spec.Path)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// fetchHealth decodes the health payload, accepting 503 as a degraded answer.
func fetchHealth(ctx context.Context, c *apiClient) (api.HealthResponse, error) {
	var health api.HealthResponse
	resp, err := c.get(ctx, "/api/health")
	if err != nil {
		return health, err
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		resp.StatusCode = http.StatusOK
	}
	err = decodeJSON(resp, &health)
	return health, err
}
