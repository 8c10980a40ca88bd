package broker

import (
	"context"
	"log/slog"

	"wallet-service/internal/domain"
)

// LogEventPublisher logs events instead of sending them to a broker. It is
// used when no RABBITMQ_URL is configured.
type LogEventPublisher struct {
	logger *slog.Logger
}

func NewLogEventPublisher(logger *slog.Logger) *LogEventPublisher {
	return &LogEventPublisher{logger: logger}
}

func (p *LogEventPublisher) Publish(ctx context.Context, event *domain.AccountEvent) error {
	p.logger.InfoContext(ctx, "event published",
		slog.String("type", event.Type),
		slog.String("account_id", event.AccountID.String()),
		slog.String("balance", event.Balance.String()),
	)
	return nil
}
