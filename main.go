// main.go
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

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"go-panel-relay/config"
	"go-panel-relay/logger"
	"go-panel-relay/panel"
	"go-panel-relay/services"
	"go-panel-relay/websocket"
)

const (
	shutdownTimeout    = 10 * time.Second
	cloudWatchInterval = time.Minute
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "panel-relay",
		Short: "Relay browser sockets to a hardware switch panel",
		Long: `panel-relay serves a web client and relays its switch updates to a
panel controller over Modbus, streaming meter snapshots back.

Running without a subcommand is the same as "panel-relay serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $PANEL_CONFIG)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		probeCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.InitLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.SetLogLevel(cfg.Env)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	controller, err := panel.Open(cfg.Panel.Driver, modbusConfig(cfg.Panel))
	if err != nil {
		return err
	}
	lease := services.NewLeaseService()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorders := websocket.MultiRecorder{websocket.NewPrometheusRecorder(registry)}
	if cfg.Metrics.CloudWatchEnabled {
		client, err := websocket.NewCloudWatchClient()
		if err != nil {
			logger.Error.Printf("[runServe] CloudWatch disabled: %v", err)
		} else {
			cw := websocket.NewCloudWatchRecorder(client, cfg.Metrics.CloudWatchNamespace, cfg.Panel.Driver)
			recorders = append(recorders, cw)
			go cw.Run(ctx, cloudWatchInterval)
		}
	}

	relay := websocket.NewRelay(controller, lease, recorders, sessionOptions(cfg.Session), cfg.Server.AllowedOrigins)

	var handler http.Handler = newRouter(cfg, relay, lease, registry)
	if cfg.Metrics.XRayEnabled {
		handler = xray.Handler(xray.NewFixedSegmentNamer("panel-relay"), handler)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info.Printf("[runServe] Listening on %s (driver=%s)", srv.Addr, cfg.Panel.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info.Println("[runServe] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// sockets first so the lease holder exits the panel
	if err := relay.Shutdown(shutdownCtx); err != nil {
		logger.Warn.Printf("[runServe] Relay shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func modbusConfig(pc config.PanelConfig) panel.ModbusConfig {
	return panel.ModbusConfig{
		Device:       pc.Device,
		BaudRate:     pc.BaudRate,
		Address:      pc.Address,
		SlaveID:      byte(pc.SlaveID),
		Timeout:      pc.Timeout,
		Meters:       pc.Meters,
		PollInterval: pc.BusInterval,
	}
}

func sessionOptions(sc config.SessionConfig) websocket.SessionOptions {
	return websocket.SessionOptions{
		PollInterval:  sc.PollInterval,
		PollBudget:    sc.PollBudget,
		SetupAttempts: sc.SetupAttempts,
	}
}
