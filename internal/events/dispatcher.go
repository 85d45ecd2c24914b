package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Dispatcher publishes in the background. Callers never wait on the broker and
// publish failures are logged, not returned.
type Dispatcher struct {
	publisher Publisher
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(publisher Publisher, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{publisher: publisher, log: log.Named("events")}
}

func (d *Dispatcher) Emit(event Event) {
	if d == nil || d.publisher == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.log.Warn("event publish failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for in-flight publishes or until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) {
	if d == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
