package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/vaultflow/internal/queue"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEventsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Watch the notification bus"}
	cmd.AddCommand(newEventsTailCmd(v))
	return cmd
}

func newEventsTailCmd(v *viper.Viper) *cobra.Command {
	var (
		requeue bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print notification events as they are published",
		Long:  "Consume events from RabbitMQ and print them. Events are acknowledged unless --requeue is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is not set")
			}

			q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return err
			}
			defer func() {
				if err := q.Close(); err != nil {
					warnf("failed to close queue: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			msgs, errs, err := q.Consume(ctx, cfg.RabbitMQPrefetch)
			if err != nil {
				return err
			}
			return tailEvents(ctx, cmd.OutOrStdout(), msgs, errs, tailOptions{requeue: requeue, limit: limit, json: v.GetBool("json")})
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue", false, "return events to the queue after printing")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many events (0 = until interrupted)")
	return cmd
}

type tailOptions struct {
	requeue bool
	limit   int
	json    bool
}

func tailEvents[M queue.MessageInterface](ctx context.Context, w io.Writer, msgs <-chan M, errs <-chan error, opts tailOptions) error {
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			warnf("%v", err)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := printEvent(w, msg.GetEvent(), opts.json); err != nil {
				return err
			}
			var ackErr error
			if opts.requeue {
				ackErr = msg.Nack(true)
			} else {
				ackErr = msg.Ack()
			}
			if ackErr != nil {
				warnf("failed to settle event: %v", ackErr)
			}
			seen++
			if opts.limit > 0 && seen >= opts.limit {
				return nil
			}
		}
	}
}

func printEvent(w io.Writer, e *queue.Event, asJSON bool) error {
	if asJSON {
		return printJSON(w, e)
	}
	source := e.Source
	if source == "" {
		source = "-"
	}
	_, err := fmt.Fprintf(w, "%s  %-18s %-10s %s: %s\n",
		e.CreatedAt.Format(time.RFC3339), e.Kind, source, e.Title, e.Body)
	return err
}
