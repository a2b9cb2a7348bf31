package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [topic]",
	Short: "Print value and migration events as they are published",
	Long: `Subscribes to the event bus and prints every event. The topic may use NATS
wildcards and defaults to "attrs.>".`,
	Args: cobra.MaximumNArgs(1),
	// Only NATS is needed; skip the database connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return prepare() },
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := "attrs.>"
		if len(args) == 1 {
			topic = args[0]
		}
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("PROVATTRS_NATS_URL")
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS server configured (set PROVATTRS_NATS_URL or --nats)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL, os.Getenv("PROVATTRS_NATS_NAMESPACE"),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		return printEvents(ctx, cmd.OutOrStdout(), ch)
	},
}

// printEvents writes one line per message until ctx is done or ch closes.
func printEvents(ctx context.Context, w io.Writer, ch <-chan events.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Fprintln(w, string(msg.Data))
				continue
			}
			fmt.Fprintf(w, "%s %s %s\n", time.Now().Format("15:04:05"), ui.RenderKey(msg.Subject), msg.Data)
		}
	}
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL (defaults to PROVATTRS_NATS_URL)")
}
