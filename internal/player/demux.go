package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drgolem/musicviz/pkg/packetqueue"
	"github.com/drgolem/musicviz/pkg/types"
)

// throttleInterval is how long the worker sleeps while the queue is over
// its byte limit.
const throttleInterval = 10 * time.Millisecond

// DemuxWorker reads packets from a container and forwards those of one
// audio stream to a packet queue. Packets of other streams are dropped.
//
// The worker is the only producer of Queue. It shuts the queue down when
// it returns, so the consumer sees end of stream after the last packet.
type DemuxWorker struct {
	Container     types.Container
	StreamIndex   int
	Queue         *packetqueue.PacketQueue
	MaxQueueBytes int // 0 = never throttle
	Logger        *slog.Logger

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// Run demultiplexes until end of file, a read error, context cancellation
// or queue shutdown. End of file and cancellation return nil.
func (w *DemuxWorker) Run(ctx context.Context) error {
	defer w.Queue.Shutdown()

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		if err := w.throttle(ctx); err != nil {
			return nil
		}

		pkt, err := w.Container.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("Demuxing finished",
					"forwarded_packets", w.forwarded.Load(),
					"dropped_packets", w.dropped.Load())
				return nil
			}
			return fmt.Errorf("failed to read packet: %w", err)
		}

		if pkt.StreamIndex != w.StreamIndex {
			w.dropped.Add(1)
			continue
		}

		if err := w.Queue.Put(pkt); err != nil {
			if errors.Is(err, packetqueue.ErrShutdown) {
				logger.Debug("Packet queue closed, demuxing stopped")
				return nil
			}
			return err
		}
		w.forwarded.Add(1)
	}
}

// throttle waits while the queue holds more than MaxQueueBytes.
// It returns the context error on cancellation.
func (w *DemuxWorker) throttle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.MaxQueueBytes <= 0 || w.Queue.Bytes() <= w.MaxQueueBytes || w.Queue.IsShutdown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(throttleInterval):
		}
	}
}

// Forwarded returns the number of packets handed to the queue.
func (w *DemuxWorker) Forwarded() uint64 {
	return w.forwarded.Load()
}

// Dropped returns the number of packets discarded as belonging to other
// streams.
func (w *DemuxWorker) Dropped() uint64 {
	return w.dropped.Load()
}
