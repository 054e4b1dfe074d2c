package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dcollect/internal/config"
	"dcollect/internal/match"
	"dcollect/internal/source"
	"dcollect/internal/stats"
	"dcollect/internal/transport"
)

// drainPollInterval is the queue-depth poll period during graceful stop.
const drainPollInterval = 20 * time.Millisecond

// ProducerSpec binds one metric source to its type masks.
// Params: source instance plus filter/drop wildcard masks.
// Returns: producer definition consumed by New.
type ProducerSpec struct {
	Name        string
	Source      source.Source
	FilterTypes []string
	DropTypes   []string
}

// Options are the pipeline construction inputs.
// Params: collector settings, event identity, producer specs, and
// optional injected transport/counters for tests.
// Returns: value consumed by New.
type Options struct {
	Collector config.CollectorConfig
	Origin    string
	Tags      map[string]string
	Producers []ProducerSpec

	Transport transport.Transport
	Counters  *stats.Counters
	Logger    *slog.Logger
}

// Pipeline orchestrates producers, dispatchers, and the connection monitor.
// Params: assembled tasks sharing the queue, manager, and counters.
// Returns: runnable delivery pipeline.
type Pipeline struct {
	queue       *IngestQueue
	manager     *ConnectionManager
	monitor     *connectionMonitor
	producers   []*producer
	dispatchers []*dispatcher
	counters    *stats.Counters
	logger      *slog.Logger

	drainTimeout      time.Duration
	disconnectTimeout time.Duration

	running  atomic.Bool
	stopOnce sync.Once

	mu         sync.Mutex
	stopped    bool
	hardCancel context.CancelFunc
}

// New assembles a pipeline from options.
// Params: opts construction inputs; Transport and Counters default to the
// configured transport and fresh counters when nil.
// Returns: pipeline ready to Run, or construction error.
func New(opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	tr := opts.Transport
	if tr == nil {
		built, err := transport.New(opts.Collector)
		if err != nil {
			return nil, fmt.Errorf("init transport: %w", err)
		}
		tr = built
	}

	counters := opts.Counters
	if counters == nil {
		counters = stats.New()
	}

	p := &Pipeline{
		queue:             NewIngestQueue(opts.Collector.QueueSize),
		counters:          counters,
		logger:            opts.Logger,
		drainTimeout:      opts.Collector.DrainTimeout.Duration,
		disconnectTimeout: opts.Collector.DisconnectTimeout.Duration,
	}
	p.manager = NewConnectionManager(
		tr,
		opts.Logger,
		counters,
		opts.Collector.ReconnectInterval.Duration,
		opts.Collector.MaxReconnectAttempts,
	)
	p.monitor = &connectionMonitor{
		manager:  p.manager,
		logger:   opts.Logger,
		interval: opts.Collector.ReconnectInterval.Duration,
		running:  &p.running,
	}

	for idx, spec := range opts.Producers {
		if spec.Source == nil {
			return nil, fmt.Errorf("producer[%d]: source is nil", idx)
		}
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("source-%d", idx)
		}
		p.producers = append(p.producers, &producer{
			name:     name,
			source:   spec.Source,
			queue:    p.queue,
			counters: counters,
			logger:   opts.Logger,
			running:  &p.running,
			origin:   opts.Origin,
			tags:     opts.Tags,
			filter:   match.CompileAll(spec.FilterTypes),
			drop:     match.CompileAll(spec.DropTypes),
		})
	}

	workers := opts.Collector.Dispatchers
	if workers < 1 {
		workers = 1
	}
	for idx := 0; idx < workers; idx++ {
		p.dispatchers = append(p.dispatchers, &dispatcher{
			id:       idx,
			queue:    p.queue,
			manager:  p.manager,
			counters: counters,
			logger:   opts.Logger,
			running:  &p.running,
			poll:     opts.Collector.PollTimeout.Duration,
		})
	}

	return p, nil
}

// NewFromConfig assembles the pipeline with the built-in sources enabled
// by configuration.
// Params: cfg validated runtime config; logger initialized logger;
// counters shared delivery counters.
// Returns: pipeline or construction error.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, counters *stats.Counters) (*Pipeline, error) {
	producers := make([]ProducerSpec, 0, 1)
	if cfg.Metrics.System.Enabled {
		producers = append(producers, ProducerSpec{
			Name:        "system",
			Source:      source.NewSystem(cfg.Metrics.System.Sample.Duration),
			FilterTypes: cfg.Metrics.System.FilterTypes,
			DropTypes:   cfg.Metrics.System.DropTypes,
		})
	}

	tags := make(map[string]string, len(cfg.Global.Tags))
	for key, value := range cfg.Global.Tags {
		tags[key] = value
	}

	return New(Options{
		Collector: cfg.Collector,
		Origin:    cfg.Global.Origin,
		Tags:      tags,
		Producers: producers,
		Counters:  counters,
		Logger:    logger,
	})
}

// Run connects and runs all tasks until Stop or a task failure.
// The initial connect is non-fatal: on failure the monitor keeps retrying
// while producers and dispatchers run with the link down.
// Params: ctx caller lifecycle; cancellation triggers the graceful Stop path.
// Returns: nil after all tasks exit or when Stop already won the startup
// race; error when called twice.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.logger.Info("pipeline was stopped before start")
		return nil
	}
	if !p.running.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return fmt.Errorf("pipeline is already running")
	}

	// Tasks run on an internal context so that teardown always goes
	// through the bounded drain/disconnect sequence in Stop.
	runCtx, hardCancel := context.WithCancel(context.Background())
	p.hardCancel = hardCancel
	p.mu.Unlock()

	// Caller cancellation routes through Stop, so it interrupts the
	// initial connect as well as the running tasks.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-watchDone:
		}
	}()

	if err := p.manager.Connect(runCtx); err != nil {
		p.logger.Warn("initial connect failed, monitor will keep retrying", slog.String("error", err.Error()))
	}

	var wg sync.WaitGroup
	crashed := make(chan struct{}, 1)
	start := func(name string, task func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(runCtx); err != nil {
				p.logger.Error("pipeline task failed", slog.String("task", name), slog.String("error", err.Error()))
				select {
				case crashed <- struct{}{}:
				default:
				}
			}
		}()
	}

	for _, prod := range p.producers {
		start("producer:"+prod.name, prod.run)
	}
	for _, disp := range p.dispatchers {
		start(fmt.Sprintf("dispatcher-%d", disp.id), disp.run)
	}
	start("monitor", p.monitor.run)

	p.logger.Info(
		"pipeline started",
		slog.Int("producers", len(p.producers)),
		slog.Int("dispatchers", len(p.dispatchers)),
		slog.Int("queue_capacity", p.queue.Cap()),
	)

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-crashed:
		p.Stop()
	case <-finished:
		p.Stop()
	}

	<-finished

	snap := p.counters.Snapshot()
	p.logger.Info(
		"pipeline stopped",
		slog.Uint64("metrics_collected", snap.Collected),
		slog.Uint64("metrics_sent", snap.Sent),
		slog.Uint64("errors", snap.Errors),
		slog.Uint64("reconnects", snap.Reconnects),
	)
	return nil
}

// Stop shuts the pipeline down in bounded time. Idempotent: the first call
// performs the sequence, later calls return immediately.
// Params: none.
// Returns: none; shutdown-path timeouts downgrade to warnings.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(p.stop)
}

// stop marks the pipeline stopped, clears the running flag, waits for a
// bounded queue drain, hard-stops the tasks, and disconnects within the
// disconnect timeout. The stopped mark is terminal: a Run that has not
// started its tasks yet refuses to start afterwards.
// Params: none.
// Returns: none.
func (p *Pipeline) stop() {
	p.mu.Lock()
	p.stopped = true
	hardCancel := p.hardCancel
	p.mu.Unlock()

	p.running.Store(false)
	p.logger.Info("pipeline stopping", slog.Int("queued", p.queue.Len()))

	deadline := time.Now().Add(p.drainTimeout)
	for p.queue.Len() > 0 {
		if time.Now().After(deadline) {
			p.logger.Warn(
				"drain timeout exceeded, dropping queued events",
				slog.Int("remaining", p.queue.Len()),
				slog.Duration("drain_timeout", p.drainTimeout),
			)
			break
		}
		time.Sleep(drainPollInterval)
	}

	if hardCancel != nil {
		hardCancel()
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), p.disconnectTimeout)
	defer cancel()
	if err := p.manager.Disconnect(disconnectCtx); err != nil {
		p.logger.Warn("disconnect failed", slog.String("error", err.Error()))
	}
}

// Connected reports the advisory collector link state.
// Params: none.
// Returns: true while the manager holds an established link.
func (p *Pipeline) Connected() bool {
	return p.manager.IsConnected()
}

// Counters exposes the shared delivery counters.
// Params: none.
// Returns: counter handle.
func (p *Pipeline) Counters() *stats.Counters {
	return p.counters
}
