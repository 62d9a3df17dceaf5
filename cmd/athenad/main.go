// Command athenad is a CCN/NDN packet forwarder. It opens the links
// named in its configuration, installs their startup routes, and runs
// the forwarding engine until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kuuji/athena/internal/adapter"
	"github.com/kuuji/athena/internal/config"
	"github.com/kuuji/athena/internal/contentstore"
	"github.com/kuuji/athena/internal/control"
	"github.com/kuuji/athena/internal/fib"
	"github.com/kuuji/athena/internal/forwarder"
	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/pit"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/transport/ethtransport"
	"github.com/kuuji/athena/internal/transport/tcptransport"
	"github.com/kuuji/athena/internal/transport/udptransport"
	"github.com/kuuji/athena/internal/transport/wstransport"
	"github.com/kuuji/athena/internal/wirename"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	globalConfigPath string
	globalVerbose    bool
	globalLogger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "athenad",
	Short: "CCN/NDN packet forwarder",
	Long: `athenad runs the forwarding engine: FIB-driven Interest
forwarding, PIT-based request aggregation, and a content store cache,
over whatever links its configuration opens.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if globalVerbose {
			level = slog.LevelDebug
		}
		globalLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
	RunE: runForwarder,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to config file (default: /etc/athena/athena.toml)")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the athenad version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func resolvedConfigPath() string {
	if globalConfigPath != "" {
		return globalConfigPath
	}
	return config.DefaultConfigPath()
}

// newRegistry wires the network transport modules (tcp, udp, eth, ws,
// wss) so a configured link with one of those schemes resolves (spec
// §4.1, §6). The in-memory template module is not registered here.
func newRegistry() *transport.Registry {
	r := transport.NewRegistry()
	r.Register(tcptransport.New())
	r.Register(udptransport.New())
	r.Register(ethtransport.New())
	r.Register(wstransport.New("ws"))
	r.Register(wstransport.New("wss"))
	return r
}

func runForwarder(cmd *cobra.Command, args []string) error {
	cfgPath := resolvedConfigPath()
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", cfgPath, err)
	}

	mgmtPrefix, err := cfg.ManagementPrefixName()
	if err != nil {
		return fmt.Errorf("management prefix: %w", err)
	}
	quitName, err := cfg.QuitNameName()
	if err != nil {
		return fmt.Errorf("quit name: %w", err)
	}

	f := fib.New()
	p := pit.New()
	store := contentstore.New(cfg.Forwarder.ContentStoreCapacityMB)

	var engine *forwarder.Engine
	a := adapter.New(newRegistry(), func(links linkset.LinkSet) {
		engine.RemoveLink(links)
	})
	engine = forwarder.New(a, f, p, store, forwarder.Config{
		ManagementPrefix:     mgmtPrefix,
		QuitName:             quitName,
		PITDefaultLifetime:   cfg.Forwarder.PITLifetime,
		RetryAlternateEgress: cfg.Forwarder.RetryAlternateEgress,
	}, globalLogger)

	for _, lc := range cfg.Links {
		id, err := a.Open(lc.URI)
		if err != nil {
			return fmt.Errorf("opening link %q: %w", lc.URI, err)
		}
		for _, rt := range lc.Routes {
			name, err := wirename.Parse(rt)
			if err != nil {
				return fmt.Errorf("link %q: route %q: %w", lc.URI, rt, err)
			}
			f.AddRoute(name, linkset.Of(id))
		}
	}

	ctrl := control.NewServer(cfg.Control.SocketPath, func() control.Status {
		return buildStatus(cfg.Forwarder.Name, mgmtPrefix.String(), a, engine)
	}, globalLogger)
	ctrl.SetRouteFuncs(
		func(e control.RouteEntry) error { return applyRoute(f, a, e, true) },
		func(e control.RouteEntry) error { return applyRoute(f, a, e, false) },
	)
	ctrl.SetLinkFuncs(
		func(uri string) error { _, err := a.Open(uri); return err },
		a.CloseByName,
	)
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("starting control server: %w", err)
	}
	defer ctrl.Stop()

	if cfg.Metrics.ListenAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: promhttp.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				globalLogger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	globalLogger.Info("starting athenad", "config", cfgPath, "name", cfg.Forwarder.Name)

	done := make(chan struct{})
	go func() {
		engine.Run()
		close(done)
	}()

	select {
	case <-ctx.Done():
		engine.Stop()
		<-done
	case <-done:
		// Engine stopped itself (e.g. a quit Interest arrived).
	}

	a.Close()
	globalLogger.Info("athenad stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
