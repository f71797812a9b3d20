package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xmsg"
)

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay the configured store through a printing bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			printMsg := printer(cmd.OutOrStdout())
			bus, closeBus, err := a.newBus(func(b *xmsg.BusBuilder) {
				b.WithRouter(demoRouter(xmsg.ResolverFunc(func(xmsg.HandlerID) (xmsg.Handler, error) {
					return printMsg, nil
				})))
			})
			if err != nil {
				return err
			}
			defer func() { _ = closeBus() }()

			n, err := xmsg.Replay(cmd.Context(), store, bus)
			if err != nil {
				return err
			}
			m := bus.GetMetrics()
			a.logger.Info().
				Str("store", a.cfg.Store.Name).
				Str("replayed", fmt.Sprint(n)).
				Str("unrouted", fmt.Sprint(m.Unrouted)).
				Msg("replay complete")
			return nil
		},
	}
}

func printer(w io.Writer) xmsg.Handler {
	return xmsg.HandlerFunc(func(_ context.Context, msg *xmsg.Message) error {
		payload, err := json.Marshal(msg.Payload())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s %-16s %s v%d %s\n",
			msg.CreatedAt().Format(time.RFC3339Nano), msg.Kind(), msg.ID(), msg.Version(), payload)
		return err
	})
}
