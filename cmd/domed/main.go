// Command domed is the observatory dome control daemon. It owns the serial
// link to the dome's motor controllers and exposes the remote command and
// telescope-notification interfaces over HTTP.
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

	"github.com/ashdome-obs/domed/ashdome"
	"github.com/ashdome-obs/domed/dome"
	"github.com/ashdome-obs/domed/internal/config"
	"github.com/ashdome-obs/domed/internal/logger"
	"github.com/ashdome-obs/domed/sky"
)

var (
	configPath string
	listenAddr string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "domed",
	Short:        "Observatory dome control daemon",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "domed.json", "path to the JSON configuration file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9004", "address for the HTTP interface")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	level, ok := logger.ParseLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}
	log := logger.New(level)
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dial := func() (dome.Controller, error) {
		return ashdome.Open(ashdome.Config{
			Port:    cfg.SerialPort,
			Baud:    cfg.SerialBaud,
			Timeout: config.Seconds(cfg.SerialTimeout),
			Retries: cfg.SerialRetries,
		}, log)
	}
	d := dome.New(cfg, sky.NewNovas(cfg.Latitude, cfg.Longitude, cfg.Altitude), dial, log)
	server := NewServer(d, cfg, log)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(ctx)
	})
	g.Go(func() error {
		log.Infof("listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return httpServer.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
