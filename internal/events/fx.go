package events

import (
	"context"

	"github.com/smallbiznis/sponsorship/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(providePublisher),
	fx.Provide(provideDispatcher),
)

// providePublisher falls back to logging when the broker is unset or unreachable
// so reservations keep working without it.
func providePublisher(cfg config.Config, log *zap.Logger) Publisher {
	if cfg.AMQPURL == "" {
		return NewLogPublisher(log)
	}
	publisher, err := NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		log.Warn("amqp unavailable, events will only be logged", zap.Error(err))
		return NewLogPublisher(log)
	}
	return publisher
}

func provideDispatcher(lc fx.Lifecycle, publisher Publisher, log *zap.Logger) *Dispatcher {
	dispatcher := NewDispatcher(publisher, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			dispatcher.Drain(ctx)
			publisher.Close()
			return nil
		},
	})
	return dispatcher
}
