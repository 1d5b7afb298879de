// Package telemetry ships reliability samples, oracle samples and decision
// events off the request path. Producers never block: when the queue is
// full the record is dropped and counted.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/observability"
)

// Batch groups records flushed together.
type Batch struct {
	Samples   []models.ReliabilitySample
	Oracle    []models.OracleSample
	Decisions []models.DecisionEvent
}

func (b *Batch) Len() int { return len(b.Samples) + len(b.Oracle) + len(b.Decisions) }

// Sink persists or forwards a batch.
type Sink interface {
	Name() string
	Write(ctx context.Context, b Batch) error
}

type record struct {
	sample   *models.ReliabilitySample
	oracle   *models.OracleSample
	decision *models.DecisionEvent
}

type DispatcherConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	Sinks         []Sink
	Metrics       *observability.Metrics
	Logger        *logrus.Logger
}

type Dispatcher struct {
	queue   chan record
	cfg     DispatcherConfig
	dropped atomic.Uint64
	logger  *logrus.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Dispatcher{
		queue:  make(chan record, cfg.QueueSize),
		cfg:    cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

func (d *Dispatcher) RecordReliabilitySample(s models.ReliabilitySample) {
	d.enqueue(record{sample: &s}, "sample")
}

func (d *Dispatcher) RecordOracleSample(s models.OracleSample) {
	d.enqueue(record{oracle: &s}, "oracle")
}

func (d *Dispatcher) PublishDecision(ev models.DecisionEvent) {
	d.enqueue(record{decision: &ev}, "decision")
}

// Dropped is the number of records lost to a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) enqueue(r record, kind string) {
	select {
	case d.queue <- r:
	default:
		d.dropped.Add(1)
		d.cfg.Metrics.TelemetryDrop(kind)
	}
}

// Start launches the flush loop. Calling it more than once is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, d.cancel = context.WithCancel(ctx)
		go d.run(ctx)
	})
}

// Close stops the loop after flushing whatever is queued.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		if d.cancel == nil {
			close(d.done)
			return
		}
		d.cancel()
		<-d.done
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	var b Batch
	for {
		select {
		case r := <-d.queue:
			b.add(r)
			if b.Len() >= d.cfg.BatchSize {
				d.flush(b)
				b = Batch{}
			}
		case <-ticker.C:
			if b.Len() > 0 {
				d.flush(b)
				b = Batch{}
			}
		case <-ctx.Done():
			for {
				select {
				case r := <-d.queue:
					b.add(r)
				default:
					if b.Len() > 0 {
						d.flush(b)
					}
					return
				}
			}
		}
	}
}

func (b *Batch) add(r record) {
	switch {
	case r.sample != nil:
		b.Samples = append(b.Samples, *r.sample)
	case r.oracle != nil:
		b.Oracle = append(b.Oracle, *r.oracle)
	case r.decision != nil:
		b.Decisions = append(b.Decisions, *r.decision)
	}
}

func (d *Dispatcher) flush(b Batch) {
	for _, s := range d.cfg.Sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
		err := s.Write(ctx, b)
		cancel()
		if err != nil {
			d.cfg.Metrics.TelemetryError(s.Name())
			d.logger.WithError(err).WithFields(logrus.Fields{
				"sink":      s.Name(),
				"samples":   len(b.Samples),
				"oracle":    len(b.Oracle),
				"decisions": len(b.Decisions),
			}).Error("telemetry write failed")
		}
	}
}
