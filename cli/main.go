// Command kaos serves satellite visibility searches over ingested STK
// ephemerides.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	gateway "github.com/adonese/kaos/apigateway"
	"github.com/adonese/kaos/ephemeris"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logrusLogger = logrus.New()

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrusLogger.Fatalf("kaos: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var cfg kaos_fields.KaosConfig

	root := &cobra.Command{
		Use:           "kaos",
		Short:         "Satellite visibility service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = loadConfig(configPath)
			if err != nil {
				return err
			}
			configureLogger(logrusLogger, &cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context(), cfg, logrusLogger, prometheus.NewRegistry())
				if err != nil {
					return err
				}
				return a.Close()
			},
		},
		&cobra.Command{
			Use:   "ingest <file.e>...",
			Short: "Store STK ephemeris files",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIngest(cmd.Context(), cfg, args)
			},
		},
		newVisibilityCmd(&cfg),
		newTokenCmd(&cfg),
	)
	return root
}

func runServe(ctx context.Context, cfg kaos_fields.KaosConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := initOTel(ctx, cfg, logrusLogger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logrusLogger.WithError(err).Warn("otel shutdown failed")
		}
	}()

	a, err := openApp(ctx, cfg, logrusLogger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Port)
	if err != nil {
		return err
	}
	return serve(ctx, ln, a.router(prometheus.DefaultRegisterer, prometheus.DefaultGatherer), logrusLogger)
}

func runIngest(ctx context.Context, cfg kaos_fields.KaosConfig, paths []string) error {
	a, err := openApp(ctx, cfg, logrusLogger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()
	for _, path := range paths {
		if _, err := ephemeris.IngestFile(ctx, a.store, path, logrusLogger); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func newVisibilityCmd(cfg *kaos_fields.KaosConfig) *cobra.Command {
	var lat, lon float64
	var start, end string
	var platforms []int64
	cmd := &cobra.Command{
		Use:   "visibility",
		Short: "Search access windows offline and print the response as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *cfg, logrusLogger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()
			resp, err := a.visibility.Search(cmd.Context(), kaos_fields.SearchRequest{
				Target:     []float64{lat, lon},
				POI:        kaos_fields.POI{StartTime: start, EndTime: end},
				PlatformID: platforms,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "target latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "target longitude in degrees")
	cmd.Flags().StringVar(&start, "start", "", "POI start, YYYYMMDDTHH:MM:SS.f")
	cmd.Flags().StringVar(&end, "end", "", "POI end, YYYYMMDDTHH:MM:SS.f")
	cmd.Flags().Int64SliceVar(&platforms, "platform", nil, "platform ids, all when omitted")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newTokenCmd(cfg *kaos_fields.KaosConfig) *cobra.Command {
	var user string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an upload token signed with jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth := &gateway.JWTAuth{Key: []byte(cfg.JWTSecret)}
			token, err := auth.GenerateJWT(user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
