package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog/cached"
	catalogpg "github.com/jcmexdev/kiosk-checkout/internal/catalog/postgres"
	oplogsqlite "github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog/sqlite"
	"github.com/jcmexdev/kiosk-checkout/internal/config"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/clover"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/printer"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/stripe"
	"github.com/jcmexdev/kiosk-checkout/internal/httpx"
	"github.com/jcmexdev/kiosk-checkout/internal/kiosk"
	orderpg "github.com/jcmexdev/kiosk-checkout/internal/orderstore/postgres"
	"github.com/jcmexdev/kiosk-checkout/internal/pkg/cache"
	"github.com/jcmexdev/kiosk-checkout/internal/pkg/telemetry"
)

const serviceName = "kiosk-server"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kiosk-server",
	Short: "Self-service kiosk ordering backend",
	Long:  `kiosk-server drives a restaurant self-service kiosk: menu browsing, cart building, and a checkout pipeline that charges the card terminal, persists the order, syncs the sale to the POS, and prints the kitchen ticket.`,
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the catalog cache")
	rootCmd.Flags().String("oplog-path", "./data/checkout.db", "SQLite path for the checkout operation log")

	viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag("redis_addr", rootCmd.Flags().Lookup("redis-addr"))
	viper.BindPFlag("oplog_path", rootCmd.Flags().Lookup("oplog-path"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Secrets live in .env on the kiosk machine; absence is fine when the
	// environment is set some other way.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("setup tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := orderpg.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	slog.Info("order store migrations applied")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.RedisAddr, serviceName)
	provider := cached.NewProvider(
		catalogpg.NewRepository(pool, cfg.Bundles),
		redisCache,
		cfg.Bundles,
		cfg.CatalogTTL,
	)

	cat, err := provider.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("catalog loaded", "categories", len(cat.Categories), "items", len(cat.Items))

	oplogRepo, err := oplogsqlite.Open(cfg.OplogPath)
	if err != nil {
		return err
	}
	defer oplogRepo.Close()

	gateways := kiosk.Gateways{
		Payment: stripe.NewClient(cfg.Stripe, nil),
		POS:     clover.NewClient(cfg.Clover, nil),
		Printer: printer.NewClient(cfg.Printer, nil),
		Orders:  orderpg.NewRepository(pool),
		Oplog:   oplogRepo,
	}

	session := kiosk.NewSession(cat, cfg.Pricing, gateways, cfg.Session)
	session.Start()
	defer session.Stop()

	router := httpx.NewRouter(httpx.NewHandler(session, oplogRepo), session)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("kiosk server running", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
