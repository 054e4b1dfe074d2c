package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"dcollect/internal/event"
)

// Metric types emitted by the system sampler.
const (
	TypeCPUPercent       = "cpu_percent"
	TypeMemoryPercent    = "memory_percent"
	TypeDiskUsagePercent = "disk_usage_percent"
	TypeNetworkBytesSent = "network_bytes_sent"
	TypeNetworkBytesRecv = "network_bytes_recv"
	TypeProcessCount     = "process_count"
)

const systemBatchSize = 6

// System samples OS-level metrics on a fixed interval.
// Params: sample interval and root mount point for disk usage.
// Returns: Source yielding one batch of system events per interval.
type System struct {
	sample  time.Duration
	mount   string
	pending []event.Event
	ticker  *time.Ticker
	primed  bool
}

// NewSystem creates the built-in system metrics sampler.
// Params: sample interval between batches.
// Returns: sampler reading from the root filesystem mount.
func NewSystem(sample time.Duration) *System {
	return &System{sample: sample, mount: "/"}
}

// Next returns the next system event, sampling a fresh batch when the
// previous one is exhausted. The first batch is taken immediately;
// later batches wait for the sample interval.
// Params: ctx bounds the interval wait and the OS probes.
// Returns: next event or ctx/probe error.
func (s *System) Next(ctx context.Context) (event.Event, error) {
	for len(s.pending) == 0 {
		if s.primed {
			if s.ticker == nil {
				s.ticker = time.NewTicker(s.sample)
			}
			select {
			case <-ctx.Done():
				return event.Event{}, ctx.Err()
			case <-s.ticker.C:
			}
		}
		s.primed = true

		batch, err := s.sampleOnce(ctx)
		if err != nil {
			return event.Event{}, err
		}
		s.pending = batch
	}

	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}

// Close releases the interval ticker.
// Params: none.
// Returns: none.
func (s *System) Close() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

// sampleOnce reads one batch of OS metrics.
// Params: ctx bounds the OS probes.
// Returns: event batch or first probe error.
func (s *System) sampleOnce(ctx context.Context) ([]event.Event, error) {
	batch := make([]event.Event, 0, systemBatchSize)
	now := time.Now().UTC()

	cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("read CPU percent: %w", err)
	}
	if len(cpuPct) > 0 {
		batch = append(batch, event.Event{Type: TypeCPUPercent, Value: cpuPct[0], Timestamp: now})
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read virtual memory: %w", err)
	}
	batch = append(batch, event.Event{Type: TypeMemoryPercent, Value: vm.UsedPercent, Timestamp: now})

	usage, err := disk.UsageWithContext(ctx, s.mount)
	if err != nil {
		return nil, fmt.Errorf("read disk usage %q: %w", s.mount, err)
	}
	batch = append(batch, event.Event{Type: TypeDiskUsagePercent, Value: usage.UsedPercent, Timestamp: now})

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("read network counters: %w", err)
	}
	if len(counters) > 0 {
		batch = append(batch,
			event.Event{Type: TypeNetworkBytesSent, Value: float64(counters[0].BytesSent), Timestamp: now},
			event.Event{Type: TypeNetworkBytesRecv, Value: float64(counters[0].BytesRecv), Timestamp: now},
		)
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read process list: %w", err)
	}
	batch = append(batch, event.Event{Type: TypeProcessCount, Value: float64(len(pids)), Timestamp: now})

	return batch, nil
}
