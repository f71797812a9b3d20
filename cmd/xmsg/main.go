package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xmsg"
	_ "github.com/trickstertwo/xmsg/adapter/memory"
	_ "github.com/trickstertwo/xmsg/adapter/redisstream"
	_ "github.com/trickstertwo/xmsg/adapter/sqlite"
)

var version = "dev"

type app struct {
	configPath string
	verbose    bool

	cfg    *Config
	logger *xlog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "xmsg",
		Short:         "Run and replay in-process message routing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newDemoCmd(a), newReplayCmd(a), newKindsCmd(a))
	return rootCmd
}

func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	zcfg := zerolog.Config{
		Console:           cfg.Log.Console,
		ConsoleTimeFormat: time.RFC3339,
		Caller:            cfg.Log.Caller,
		CallerSkip:        5,
	}
	if a.verbose {
		zcfg.MinLevel = xlog.LevelDebug
	}
	a.logger = zerolog.Use(zcfg).With(xlog.Str("app", "xmsg"))
	return nil
}

func (a *app) openStore() (xmsg.Store, error) {
	s, err := xmsg.NewStore(a.cfg.Store.Name, a.cfg.Store.Options)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", a.cfg.Store.Name, err)
	}
	return s, nil
}

// newBus applies the configured bus options on top of init.
func (a *app) newBus(init func(b *xmsg.BusBuilder)) (*xmsg.Bus, func() error, error) {
	return xmsg.New(func(b *xmsg.BusBuilder) {
		b.WithLogger(a.logger).WithMaxPending(a.cfg.Bus.MaxPending)
		if a.cfg.Bus.ObserverWorkers > 0 || a.cfg.Bus.ObserverBuffer > 0 {
			b.WithObserverPool(a.cfg.Bus.ObserverWorkers, a.cfg.Bus.ObserverBuffer)
		}
		init(b)
	})
}

func newKindsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the message kinds routed by the demo",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := demoRouter(xmsg.NewHandlerMap())
			for _, k := range r.Kinds() {
				id, _ := r.Lookup(k)
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s -> %s\n", k, id)
			}
			return nil
		},
	}
}
