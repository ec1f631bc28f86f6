package player

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/musicviz/pkg/codec"
	"github.com/drgolem/musicviz/pkg/container"
	"github.com/drgolem/musicviz/pkg/decoder"
	"github.com/drgolem/musicviz/pkg/dsp"
	"github.com/drgolem/musicviz/pkg/output"
	"github.com/drgolem/musicviz/pkg/packetqueue"
	"github.com/drgolem/musicviz/pkg/types"

	"golang.org/x/sync/errgroup"
)

// Session plays one media file: a demux goroutine fills the packet queue,
// the output device's callback decodes through the Bridge, and the analysis
// of every buffer is published for the renderer.
//
// Lifecycle: Open, Play, then Wait or Stop. Stop may be called at any time
// and more than once.
type Session struct {
	cfg    Config
	device output.Device
	logger *slog.Logger

	fileName  string
	container types.Container
	stream    types.StreamInfo
	codec     types.Codec

	queue    *packetqueue.PacketQueue
	dec      *decoder.Decoder
	analyser *dsp.Analyser
	bridge   *Bridge
	worker   *DemuxWorker
	spec     types.AudioSpec

	group  *errgroup.Group
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	paused   atomic.Bool

	mu        sync.Mutex
	stopped   bool
	startTime time.Time
}

// NewSession creates a session that plays through device.
func NewSession(cfg Config, device output.Device, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = maxFrameSize
	}
	return &Session{
		cfg:    cfg,
		device: device,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Open opens fileName, selects its first audio stream and creates a codec
// for it. Errors wrap types.ErrUnsupportedFormat, types.ErrNoAudioStream or
// types.ErrUnsupportedCodec where applicable.
func (s *Session) Open(fileName string) error {
	c, err := container.Open(fileName)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}
	return s.OpenContainer(c, fileName)
}

// OpenContainer prepares playback of an already opened container. The
// session takes ownership of c and closes it on failure or Stop.
func (s *Session) OpenContainer(c types.Container, name string) error {
	stream, err := container.FirstAudioStream(c.Streams())
	if err != nil {
		c.Close()
		return fmt.Errorf("couldn't find audio stream: %w", err)
	}

	cd, err := codec.New(stream)
	if err != nil {
		c.Close()
		return fmt.Errorf("could not find codec: %w", err)
	}

	rate, channels, bps := cd.Format()
	s.logger.Info("Audio file opened",
		"file", filepath.Base(name),
		"stream", stream.Index,
		"codec", stream.Codec,
		"sample_rate", rate,
		"channels", channels,
		"bits_per_sample", bps)

	s.fileName = filepath.Base(name)
	s.container = c
	s.stream = stream
	s.codec = cd
	return nil
}

// Play opens the output device, starts the demux worker and starts the
// output stream.
func (s *Session) Play(ctx context.Context) error {
	if s.codec == nil {
		return fmt.Errorf("no file opened")
	}

	rate, channels, bps := s.codec.Format()
	want := types.AudioSpec{
		SampleRate:      rate,
		Channels:        channels,
		BitsPerSample:   bps,
		FramesPerBuffer: s.cfg.FramesPerBuffer,
	}

	got, err := s.device.Open(want, s.audioCallback)
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	if got.SampleRate != want.SampleRate {
		s.logger.Info("Device sample rate differs, resampling",
			"stream_rate", want.SampleRate,
			"device_rate", got.SampleRate)
	}
	s.spec = got

	ctx, s.cancel = context.WithCancel(ctx)
	s.queue = packetqueue.New()
	s.dec, err = decoder.New(queueSource{ctx: ctx, queue: s.queue}, s.codec,
		decoder.WithLogger(s.logger),
		decoder.WithOutputRate(got.SampleRate))
	if err != nil {
		s.cancel()
		s.device.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	s.analyser = dsp.NewAnalyser(got.Channels, dsp.WithSmoothing(s.cfg.Smoothing))
	s.bridge = NewBridge(s.dec, s.analyser, s.cfg.DelaySlots, s.cfg.MaxFrameBytes, s.logger)
	s.worker = &DemuxWorker{
		Container:     s.container,
		StreamIndex:   s.stream.Index,
		Queue:         s.queue,
		MaxQueueBytes: s.cfg.MaxQueueBytes,
		Logger:        s.logger,
	}

	var gctx context.Context
	s.group, gctx = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		return s.worker.Run(gctx)
	})

	s.startTime = time.Now()
	if err := s.device.Start(); err != nil {
		s.Stop()
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	s.logger.Debug("Playback started",
		"sample_rate", got.SampleRate,
		"channels", got.Channels,
		"frames_per_buffer", got.FramesPerBuffer,
		"delay_slots", s.cfg.DelaySlots)
	return nil
}

// queueSource ends the stream for the decoder once the session context is
// cancelled, even if nobody shuts the queue down.
type queueSource struct {
	ctx   context.Context
	queue *packetqueue.PacketQueue
}

func (q queueSource) Get() (types.Packet, error) {
	pkt, err := q.queue.GetContext(q.ctx)
	if err != nil && q.ctx.Err() != nil {
		return types.Packet{}, packetqueue.ErrShutdown
	}
	return pkt, err
}

func (s *Session) audioCallback(out []byte) bool {
	s.bridge.Fill(out)
	if s.bridge.Drained() {
		s.doneOnce.Do(func() { close(s.done) })
		return false
	}
	return true
}

// Done is closed when the last delayed buffer has been handed to the device.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until playback completes and returns the demux worker's
// error, if any.
func (s *Session) Wait() error {
	<-s.done
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// TogglePause pauses or resumes the output stream and reports the new
// paused state.
func (s *Session) TogglePause() (bool, error) {
	paused := !s.paused.Load()
	if err := s.device.Pause(paused); err != nil {
		return !paused, err
	}
	s.paused.Store(paused)
	s.logger.Info("Playback paused", "paused", paused)
	return paused, nil
}

// Analysis returns the most recent signal analysis, nil before Play.
func (s *Session) Analysis() *dsp.State {
	if s.analyser == nil {
		return nil
	}
	return s.analyser.Latest()
}

// Stop aborts the queue, joins the demux worker, stops the output stream
// and releases the codec and container.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	var workerErr error
	if s.queue != nil {
		// wakes a callback blocked on an empty queue
		s.queue.Abort()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		workerErr = s.group.Wait()
	}

	if err := s.device.Close(); err != nil {
		s.logger.Warn("Failed to close audio device", "error", err)
	}
	if s.dec != nil {
		if err := s.dec.Close(); err != nil {
			s.logger.Warn("Failed to close decoder", "error", err)
		}
	}
	if s.codec != nil {
		if err := s.codec.Close(); err != nil {
			s.logger.Warn("Failed to close codec", "error", err)
		}
	}
	if s.container != nil {
		if err := s.container.Close(); err != nil {
			s.logger.Warn("Failed to close container", "error", err)
		}
	}

	s.doneOnce.Do(func() { close(s.done) })
	return workerErr
}

// GetPlaybackStatus returns current playback status. Implements
// types.PlaybackMonitor interface.
func (s *Session) GetPlaybackStatus() types.PlaybackStatus {
	status := types.PlaybackStatus{
		FileName:        s.fileName,
		SampleRate:      s.spec.SampleRate,
		Channels:        s.spec.Channels,
		BitsPerSample:   s.spec.BitsPerSample,
		FramesPerBuffer: s.spec.FramesPerBuffer,
	}
	if s.bridge == nil {
		return status
	}

	if frameBytes := s.spec.BytesPerFrame(); frameBytes > 0 {
		status.PlayedSamples = s.bridge.PlayedBytes() / uint64(frameBytes)
	}
	status.BufferedSamples = uint64(max(s.cfg.DelaySlots-1, 0) * s.spec.FramesPerBuffer)
	status.QueuedPackets = s.queue.Len()
	status.DecodeErrors = s.dec.Stats().Errors
	status.ElapsedTime = time.Since(s.startTime)
	return status
}
