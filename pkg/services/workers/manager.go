package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	embeddednats "datacatalog/pkg/services/embedded-nats"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

type Manager struct {
	workers []Worker
	nc      *nats.Conn
	js      nats.JetStreamContext
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager runs the given workers against the embedded server's
// connection. The connection stays owned by natsClient.
func NewManager(natsClient *embeddednats.EmbeddedNATS, workers ...Worker) (*Manager, error) {
	nc := natsClient.Connection()
	if nc == nil {
		return nil, fmt.Errorf("NATS connection not initialized")
	}

	js := natsClient.JetStream()
	if js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		nc:      nc,
		js:      js,
		ctx:     ctx,
		cancel:  cancel,
		workers: workers,
	}, nil
}

func (m *Manager) Start() error {
	for _, worker := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()

			log.Debug("Starting worker", "worker", w.Name())
			if err := w.Start(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Worker failed", "worker", w.Name(), "err", err)
			}
			log.Debug("Worker stopped", "worker", w.Name())
		}(worker)
	}

	log.Info("Started workers", "count", len(m.workers))
	return nil
}

func (m *Manager) Stop() error {
	m.cancel()

	for _, worker := range m.workers {
		if err := worker.Stop(); err != nil {
			log.Warn("Error stopping worker", "worker", worker.Name(), "err", err)
		}
	}

	m.wg.Wait()
	log.Info("All workers stopped")
	return nil
}
