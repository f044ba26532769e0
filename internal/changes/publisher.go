package changes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher forwards committed notices to systems outside this process.
type Publisher interface {
	Publish(ctx context.Context, notice Notice) error
	Close() error
}

// NoopPublisher drops every notice. The site runs with it when nats.url is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Notice) error { return nil }

func (NoopPublisher) Close() error { return nil }

// NATSPublisher sends each notice as JSON on its Topic subject.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher dials url and keeps reconnecting for the life of the site.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("clubsite"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("change bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("change bus reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("changes: connect %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("changes: encode %s: %w", notice.Topic(), err)
	}
	if err := p.conn.Publish(notice.Topic(), payload); err != nil {
		return fmt.Errorf("changes: publish %s: %w", notice.Topic(), err)
	}
	return nil
}

// Close flushes buffered notices before closing the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
