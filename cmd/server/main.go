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

	"github.com/go-extras/cobraflags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"uchat/internal/auth"
	"uchat/internal/config"
	"uchat/internal/crypto"
	"uchat/internal/db"
	"uchat/internal/handlers"
	"uchat/internal/images"
	"uchat/internal/logging"
	"uchat/internal/metrics"
	"uchat/internal/supervisor"
)

const (
	databaseURLFlag = "database-url"
	bindFlag        = "bind"
)

// flagSet is one command's flags. cobraflags binds a Flag to the last
// command it was registered on, so every command gets its own set.
type flagSet map[string]cobraflags.Flag

func newServeFlags() flagSet {
	return flagSet{
		databaseURLFlag: &cobraflags.StringFlag{
			Name:  databaseURLFlag,
			Value: "",
			Usage: "PostgreSQL connection URL, overrides API_DATABASE_URL",
		},
		bindFlag: &cobraflags.StringFlag{
			Name:  bindFlag,
			Value: "",
			Usage: "Address to listen on, overrides API_BIND",
		},
	}
}

// runFunc runs a command with the flags registered on it.
type runFunc func(cmd *cobra.Command, flags flagSet) error

func main() {
	if err := newRootCommand(runServe, runMigrate).Execute(); err != nil {
		os.Exit(1)
	}
}

// withFlags registers a fresh flag set on cmd and hands it to run.
func withFlags(cmd *cobra.Command, flags flagSet, run runFunc) *cobra.Command {
	cobraflags.RegisterMap(cmd, flags)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return run(cmd, flags)
	}
	return cmd
}

func newRootCommand(serve, migrate runFunc) *cobra.Command {
	root := withFlags(&cobra.Command{
		Use:           "uchat",
		Short:         "uchat API server",
		Long:          "Runs the uchat JSON API. With no subcommand the server is started.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}, newServeFlags(), serve)

	serveCmd := withFlags(&cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the API server",
	}, newServeFlags(), serve)

	root.AddCommand(serveCmd, newGenKeyCommand(), newMigrateCommand(migrate))
	return root
}

// loadConfig applies command line overrides on top of the file and
// environment configuration and sets up logging.
func loadConfig(flags flagSet) (*config.Config, error) {
	cfg, err := config.Load(func(cfg *config.Config) {
		if v := flags[databaseURLFlag].GetString(); v != "" {
			cfg.Database.URL = v
		}
		if v := flags[bindFlag].GetString(); v != "" {
			cfg.Server.Bind = v
		}
	})
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func runServe(cmd *cobra.Command, flags flagSet) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.Session.PrivateKey == "" {
		return errors.New("missing private key: run `uchat gen-key` and set API_PRIVATE_KEY")
	}
	keys, err := crypto.DecodeSigningKeys(cfg.Session.PrivateKey)
	if err != nil {
		return fmt.Errorf("API_PRIVATE_KEY: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, db.Options{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logging.Info().Ints("versions", applied).Msg("migrations applied")
	}
	if err := metrics.RegisterPoolStats(prometheus.DefaultRegisterer, pool); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	imgs, err := images.NewStore(cfg.Images.Dir, cfg.Server.APIURL, cfg.Images.MaxBytes)
	if err != nil {
		return err
	}
	sessions := auth.NewManager(keys, cfg.Session.Duration, cfg.Session.CookieSecure)
	st := handlers.New(handlers.PgxPool(pool), sessions, imgs)

	srv := &http.Server{
		Addr: cfg.Server.Bind,
		Handler: st.Routes(handlers.RouterConfig{
			CORSOrigins:    cfg.Server.CORSOrigins,
			LoginRateLimit: cfg.Server.LoginRateLimit,
			TrustProxy:     cfg.Server.TrustProxy,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(supervisor.NewSessionReaper(pool, cfg.Session.ReapInterval))

	logging.Info().Str("bind", cfg.Server.Bind).Str("api_url", cfg.Server.APIURL).Msg("uchat api listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("shut down")
	return nil
}
