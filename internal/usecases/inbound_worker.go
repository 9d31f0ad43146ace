package usecases

import (
	"context"
	"sync"

	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"

	log "github.com/sirupsen/logrus"
)

// InboundSubscriber is the consuming side of the inbound message bus
type InboundSubscriber interface {
	SubscribeInbound(ctx context.Context, handler infrastructure.InboundHandler) error
}

// InboundWorker drives the active flow for messages taken off the bus.
// Each message runs in its own goroutine; runs for one contact are
// serialized by the message service.
type InboundWorker struct {
	service *MessageService
	bus     InboundSubscriber

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	runCtx  context.Context
	cancel  context.CancelFunc
	logger  *log.Entry
}

func NewInboundWorker(service *MessageService, bus InboundSubscriber) *InboundWorker {
	return &InboundWorker{
		service: service,
		bus:     bus,
		logger:  log.WithField("module", "inbound_worker"),
	}
}

// Start subscribes to the bus. Flow runs outlive ctx until Shutdown.
func (w *InboundWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	w.runCtx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Unlock()
	return w.bus.SubscribeInbound(ctx, w.dispatch)
}

func (w *InboundWorker) dispatch(_ context.Context, in entities.InboundMessage) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		w.logger.WithField("from", in.From).Warn("Dropping inbound message during shutdown")
		return nil
	}
	w.wg.Add(1)
	runCtx := w.runCtx
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.service.RunFlow(runCtx, in); err != nil {
			w.logger.WithError(err).WithField("from", in.From).Warn("Flow run failed")
		}
	}()
	return nil
}

// Shutdown stops accepting messages and waits for running flows. When ctx
// expires first the remaining runs are cancelled.
func (w *InboundWorker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closing = true
	cancel := w.cancel
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
}
