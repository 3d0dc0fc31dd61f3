package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/listenproof/internal/adapters/http/api"
	"github.com/okian/listenproof/internal/adapters/http/swagger"
	app "github.com/okian/listenproof/internal/app"
	"github.com/okian/listenproof/internal/config"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 3 * time.Minute // a proof request may run up to run_timeout_s
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	pushTimeout       = 10 * time.Second
	pushJob           = "listenproof"
)

// cli carries state shared by the subcommands once the root pre-run loaded it.
type cli struct {
	cfg  *config.Config
	log  logger.Logger
	opts []app.Option
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{opts: opts}
	root := &cobra.Command{
		Use:   "listenproof",
		Short: "Proof of contribution for listening-history data",
		Long: `listenproof validates a contributed listening history against the
streaming provider, scores it, records the reward in the uniqueness ledger
and writes the proof document.

Configuration is read from defaults, then the YAML file named by
PROOF_CONFIG, then PROOF_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.AddCommand(c.proveCmd(), c.serveCmd())
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.cfg = cfg
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

func (c *cli) proveCmd() *cobra.Command {
	var inputDir, outputDir string
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove the contribution in the input directory and write results.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inputDir != "" {
				c.cfg.InputDir = inputDir
			}
			if outputDir != "" {
				c.cfg.OutputDir = outputDir
			}
			return c.prove(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory holding the contribution file (overrides input_dir)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory receiving results.json (overrides output_dir)")
	return cmd
}

func (c *cli) prove(ctx context.Context) error {
	svc := app.New(c.cfg, append([]app.Option{app.WithLogger(c.log)}, c.opts...)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	_, runErr := svc.RunJob(ctx)
	if runErr != nil {
		c.log.Error(ctx, "proof run failed", logger.String("kind", app.Kind(runErr)), logger.Error(runErr))
	}

	if c.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		grouping := map[string]string{}
		if c.cfg.JobID != "" {
			grouping["job_id"] = c.cfg.JobID
		}
		if err := metrics.Push(pushCtx, c.cfg.PushgatewayURL, pushJob, grouping); err != nil {
			c.log.Warn(ctx, "metrics push failed", logger.Error(err))
		}
	}
	return runErr
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the proof API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides addr)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	svc := app.New(c.cfg, append([]app.Option{app.WithLogger(c.log)}, c.opts...)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.log.Info(gctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Wait for shutdown signal or a server failure
		<-gctx.Done()
		c.log.Info(gctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		c.log.Info(gctx, "server stopped")
		return nil
	})
	return g.Wait()
}
