package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hackshare/clustercomm/internal/logger"
	"github.com/hackshare/clustercomm/internal/telemetry"
	"github.com/hackshare/clustercomm/transport"
	"github.com/hackshare/clustercomm/transport/addr"
	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/debugapi"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bind a server and echo every string request it receives",
	RunE:  runServe,
}

var serveAddr string
var serveDebugAddr string
var serveProfile bool
var serveProfileEndpoint string
var serveProfileTypes []string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7070", "address to listen on")
	serveCmd.Flags().StringVar(&serveDebugAddr, "debug-addr", "", "address for the debug HTTP API (disabled if empty)")
	serveCmd.Flags().BoolVar(&serveProfile, "profile", false, "enable continuous profiling via Pyroscope")
	serveCmd.Flags().StringVar(&serveProfileEndpoint, "profile-endpoint", "http://localhost:4040", "Pyroscope server address")
	serveCmd.Flags().StringSliceVar(&serveProfileTypes, "profile-types", []string{"cpu", "goroutines"}, "profile types to collect")
}

func runServe(cmd *cobra.Command, args []string) error {
	address, err := addr.Parse(serveAddr)
	if err != nil {
		return fmt.Errorf("parse --addr: %w", err)
	}

	profileCfg := telemetry.DefaultProfilingConfig()
	profileCfg.Enabled = serveProfile
	profileCfg.Endpoint = serveProfileEndpoint
	profileCfg.ProfileTypes = serveProfileTypes
	stopProfiling, err := telemetry.InitProfiling(profileCfg)
	if err != nil {
		return fmt.Errorf("init profiling: %w", err)
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Warn("profiler stop failed", logger.Err(err))
		}
	}()
	if serveProfile {
		logger.Info("continuous profiling enabled", "endpoint", serveProfileEndpoint)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	tr := transport.NewNetworkTransport(transport.WithMetrics(rec))
	srv := tr.Server("clustercommd")

	l := tr.Control()
	var listenErr error
	l.Run(func(ctx context.Context) {
		fut, err := srv.Listen(ctx, address, echoAccept)
		if err != nil {
			listenErr = err
			return
		}
		if _, err := fut.Wait(ctx); err != nil {
			listenErr = err
		}
	})
	if listenErr != nil {
		return listenErr
	}
	logger.Info("clustercommd listening", "addr", serveAddr)

	var dbg *debugapi.Server
	if serveDebugAddr != "" {
		dbg = debugapi.NewServer(serveDebugAddr, reg, srv)
		go func() {
			if err := dbg.ListenAndServe(); err != nil {
				logger.Warn("debug API stopped", logger.Err(err))
			}
		}()
		logger.Info("debug API listening", "addr", serveDebugAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if dbg != nil {
		_ = dbg.Shutdown()
	}
	waitFuture(tr.Close())
	return nil
}

// echoAccept installs a handler on every accepted Connection that answers a
// string request with the same string, per spec.md §8's Echo scenario.
func echoAccept(ctx context.Context, c *conn.Connection) {
	_, _ = c.Handler(ctx, stringTypeKey, func(ctx context.Context, req any) *future.Future {
		fut := future.New(loop.From(ctx))
		fut.Complete(req, nil)
		return fut
	})
}

func waitFuture(f *future.Future) {
	done := make(chan struct{})
	f.OnComplete(func(any, error) { close(done) })
	<-done
}
