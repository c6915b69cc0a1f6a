package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/nats-io/nats.go"
)

const publishAttempts = 3

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type NatsPublisher struct {
	nc         natsConn
	subject    string
	retryDelay time.Duration
	log        *slog.Logger
}

func NewNatsPublisher(ctx context.Context, url, subject string, log *slog.Logger) (*NatsPublisher, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		nc, err := nats.Connect(url,
			nats.Name("storefront"),
			nats.MaxReconnects(5),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("NATS disconnected", slog.Any("error", err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
			}),
		)
		if err == nil {
			log.Info("connected to NATS", slog.String("url", url))
			return newNatsPublisher(nc, subject, log), nil
		}

		lastErr = err
		log.Warn("failed to connect to NATS", slog.Int("attempt", i+1), slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to NATS: %w", errors.Join(err, ctx.Err()))
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after retries: %w", lastErr)
}

func newNatsPublisher(nc natsConn, subject string, log *slog.Logger) *NatsPublisher {
	return &NatsPublisher{nc: nc, subject: subject, retryDelay: time.Second, log: log}
}

func (p *NatsPublisher) PublishOrderResolved(ctx context.Context, event domain.OrderResolved) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < publishAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		if lastErr = p.nc.Publish(p.subject, data); lastErr != nil {
			p.log.Warn("failed to publish to NATS", slog.Int("attempt", i+1), slog.Any("error", lastErr))
			continue
		}
		if lastErr = p.nc.FlushTimeout(2 * time.Second); lastErr != nil {
			p.log.Warn("failed to flush NATS connection", slog.Any("error", lastErr))
			continue
		}
		return nil
	}
	return fmt.Errorf("publish %s for order %s after retries: %w", p.subject, event.OrderID, lastErr)
}

func (p *NatsPublisher) Close() error {
	p.nc.Close()
	return nil
}
