package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/xmsg"
)

const (
	kindOrderPlaced      xmsg.Kind = "OrderPlaced"
	kindStockReserved    xmsg.Kind = "StockReserved"
	kindPaymentRequested xmsg.Kind = "PaymentRequested"
	kindOrderConfirmed   xmsg.Kind = "OrderConfirmed"
)

var demoRoutes = map[xmsg.Kind]xmsg.HandlerID{
	kindOrderPlaced:      "OrderPlacedHandler",
	kindStockReserved:    "StockReservedHandler",
	kindPaymentRequested: "PaymentRequestedHandler",
	kindOrderConfirmed:   "OrderConfirmedHandler",
}

func demoRouter(resolver xmsg.HandlerResolver) *xmsg.Router {
	r := xmsg.NewRouter(resolver)
	for kind, id := range demoRoutes {
		_ = r.Register(kind, id)
	}
	return r
}

// demoHandlers wires the order flow: each step dispatches the next one from
// inside its handler.
func demoHandlers() *xmsg.HandlerMap {
	hm := xmsg.NewHandlerMap()
	_ = hm.SetFunc("OrderPlacedHandler", func(ctx context.Context, msg *xmsg.Message) error {
		return follow(ctx, msg, kindStockReserved)
	})
	_ = hm.SetFunc("StockReservedHandler", func(ctx context.Context, msg *xmsg.Message) error {
		return follow(ctx, msg, kindPaymentRequested)
	})
	_ = hm.SetFunc("PaymentRequestedHandler", func(ctx context.Context, msg *xmsg.Message) error {
		return follow(ctx, msg, kindOrderConfirmed)
	})
	_ = hm.SetFunc("OrderConfirmedHandler", func(ctx context.Context, msg *xmsg.Message) error {
		if l, ok := xmsg.LoggerFromContext(ctx); ok {
			l.Info().
				Str("order_id", msg.Payload().String("orderId")).
				Str("correlation_id", msg.Metadata().String("correlationId")).
				Msg("order confirmed")
		}
		return nil
	})
	return hm
}

func follow(ctx context.Context, msg *xmsg.Message, next xmsg.Kind) error {
	bus, ok := xmsg.BusFromContext(ctx)
	if !ok {
		return errors.New("demo: handler called outside a bus")
	}
	correlation := msg.Metadata().String("correlationId")
	if correlation == "" {
		correlation = msg.ID()
	}
	return bus.Dispatch(ctx, next.New(
		msg.Payload(),
		xmsg.NewValues("correlationId", correlation, "causationId", msg.ID()),
	))
}

func newDemoCmd(a *app) *cobra.Command {
	var orders, producers int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the order flow and journal every handled message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orders < 1 || producers < 1 {
				return fmt.Errorf("--orders and --producers must be >= 1")
			}
			ctx := cmd.Context()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			bus, closeBus, err := a.newBus(func(b *xmsg.BusBuilder) {
				b.WithRouter(demoRouter(demoHandlers())).
					WithMiddleware(xmsg.RecoveryMiddleware(), xmsg.JournalMiddleware(store))
			})
			if err != nil {
				return err
			}
			defer func() { _ = closeBus() }()

			g, gctx := errgroup.WithContext(ctx)
			for p := 0; p < producers; p++ {
				g.Go(func() error {
					for i := p; i < orders; i += producers {
						msg := kindOrderPlaced.New(
							xmsg.NewValues("orderId", strconv.Itoa(i+1), "producer", strconv.Itoa(p)),
							xmsg.NewValues(),
						)
						if err := bus.Dispatch(gctx, msg); err != nil {
							return fmt.Errorf("dispatch order %d: %w", i+1, err)
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			m := bus.GetMetrics()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dispatched=%d routed=%d unrouted=%d failed=%d avg_route_ms=%.3f\n",
				m.Dispatched, m.Routed, m.Unrouted, m.Failed, m.AvgRouteTimeMs)

			counts, err := journalCounts(ctx, a, store)
			if err != nil {
				return err
			}
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(out, "journal %-16s %d\n", k, counts[xmsg.Kind(k)])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&orders, "orders", "n", 3, "Number of orders to place")
	cmd.Flags().IntVarP(&producers, "producers", "p", 1, "Concurrent goroutines dispatching orders")
	return cmd
}

// journalCounts replays store into a counting bus and tallies messages per kind.
func journalCounts(ctx context.Context, a *app, store xmsg.Store) (map[xmsg.Kind]int, error) {
	counts := make(map[xmsg.Kind]int)
	count := xmsg.HandlerFunc(func(_ context.Context, msg *xmsg.Message) error {
		counts[msg.Kind()]++
		return nil
	})
	bus, closeBus, err := a.newBus(func(b *xmsg.BusBuilder) {
		b.WithRouter(demoRouter(xmsg.ResolverFunc(func(xmsg.HandlerID) (xmsg.Handler, error) {
			return count, nil
		})))
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeBus() }()

	if _, err := xmsg.Replay(ctx, store, bus); err != nil {
		return nil, err
	}
	return counts, nil
}
