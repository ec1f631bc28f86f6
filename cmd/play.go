package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/drgolem/musicviz/internal/glwindow"
	"github.com/drgolem/musicviz/internal/player"
	"github.com/drgolem/musicviz/internal/visualiser"
	"github.com/drgolem/musicviz/pkg/output"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
)

var (
	deviceIdx   int
	frames      int
	delaySlots  int
	targetFPS   int
	vsync       bool
	winWidth    int
	winHeight   int
	nullOutput  bool
	noWindow    bool
	showVersion bool
	verbose     bool
	smoothing   float64
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <media_file>",
	Short: "Play a media file with a live spectrum visualiser",
	Long: `Play the first audio stream of a media file and draw its spectrum, level and
waveform in a window while it plays.

Examples:
  # Play an Ogg Vorbis file
  musicviz play music.ogg

  # Play on a specific device with smaller callbacks
  musicviz play -d 0 -f 512 music.ogg

  # Cap the visualiser at 30 fps without vsync
  musicviz play --fps 30 music.wav

  # Headless: no window, no sound card
  musicviz play --no-window --null music.mp3

Keys:
  Space     pause / resume
  Esc, Q    quit

Delay Slots:
  Each decoded buffer is held back by (delay-slots - 1) callbacks before it is
  played, so the picture leads the sound by that much. 1 disables the delay.

Status Reporting:
  Playback status is logged every 2 seconds showing:
  - File name and device format
  - Played and delayed audio time
  - Packets queued and decode errors`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	defaults := player.DefaultConfig()

	playCmd.Flags().IntVarP(&deviceIdx, "device", "d", defaults.DeviceIndex, "Audio output device index")
	playCmd.Flags().IntVarP(&frames, "frames", "f", defaults.FramesPerBuffer, "Audio frames per buffer")
	playCmd.Flags().IntVar(&delaySlots, "delay-slots", defaults.DelaySlots, "Buffers held in the output delay line")
	playCmd.Flags().Float64Var(&smoothing, "smoothing", defaults.Smoothing, "Spectrum smoothing between frames, 0 (none) to below 1")
	playCmd.Flags().IntVar(&targetFPS, "fps", visualiser.DefaultFPS, "Visualiser frame rate when vsync is off")
	playCmd.Flags().BoolVar(&vsync, "vsync", false, "Sync buffer swaps to the display")
	playCmd.Flags().IntVar(&winWidth, "width", 1024, "Window width")
	playCmd.Flags().IntVar(&winHeight, "height", 512, "Window height")
	playCmd.Flags().BoolVar(&nullOutput, "null", false, "Discard audio instead of opening a sound card")
	playCmd.Flags().BoolVar(&noWindow, "no-window", false, "Play without the visualiser window")
	playCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	playCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}

func runPlay(cmd *cobra.Command, args []string) {
	if showVersion {
		fmt.Printf("musicviz v%s\n", version)
		fmt.Println("Built with:")
		fmt.Println("  - Demux worker feeding a packet queue")
		fmt.Println("  - Decoding inside the audio callback")
		fmt.Println("  - Circular delay line ahead of the output")
		fmt.Println("  - PortAudio output, GLFW/OpenGL visualiser")
		os.Exit(0)
	}

	fileName := args[0]
	logger := setupLogging(verbose)

	if _, err := os.Stat(fileName); os.IsNotExist(err) {
		slog.Error("File not found", "path", fileName)
		os.Exit(1)
	}

	cfg := player.DefaultConfig()
	cfg.DeviceIndex = deviceIdx
	cfg.FramesPerBuffer = frames
	cfg.DelaySlots = delaySlots
	if cfg.DelaySlots < 1 {
		slog.Error("Invalid delay slots", "delay_slots", delaySlots, "min", 1)
		os.Exit(1)
	}
	cfg.Smoothing = smoothing
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		slog.Error("Invalid smoothing", "smoothing", smoothing, "valid_range", "[0, 1)")
		os.Exit(1)
	}

	var device output.Device
	if nullOutput {
		slog.Info("Using null audio output")
		device = output.NewNullDevice(true)
	} else {
		slog.Info("Initializing PortAudio")
		if err := portaudio.Initialize(); err != nil {
			slog.Error("Failed to initialize PortAudio", "error", err)
			slog.Error("Hint: Make sure PortAudio is installed on your system")
			os.Exit(1)
		}
		defer portaudio.Terminate()

		slog.Info("PortAudio initialized",
			"version", portaudio.GetVersion())
		device = output.NewPortAudio(cfg.DeviceIndex, logger)
	}

	slog.Info("Audio configuration",
		"device", cfg.DeviceIndex,
		"frames_per_buffer", cfg.FramesPerBuffer,
		"delay_slots", cfg.DelaySlots)

	session := player.NewSession(cfg, device, logger)
	if err := session.Open(fileName); err != nil {
		slog.Error("Failed to open file", "error", err)
		os.Exit(1)
	}

	var window *glwindow.Window
	if !noWindow {
		if err := glwindow.Init(); err != nil {
			session.Stop()
			slog.Error("Failed to initialize windowing", "error", err)
			os.Exit(1)
		}
		defer glwindow.Terminate()

		var err error
		window, err = glwindow.New(glwindow.Config{
			Title:  "musicviz - " + filepath.Base(fileName),
			Width:  winWidth,
			Height: winHeight,
			VSync:  vsync,
		}, logger)
		if err != nil {
			session.Stop()
			slog.Error("Failed to create window", "error", err)
			os.Exit(1)
		}
		defer window.Destroy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := session.Play(ctx); err != nil {
		session.Stop()
		slog.Error("Failed to start playback", "error", err)
		os.Exit(1)
	}

	statusDone := make(chan struct{})
	go monitorPlayback(session, statusDone)

	var interrupted bool
	if window == nil {
		select {
		case <-session.Done():
			slog.Info("File completed", "file", fileName)
		case sig := <-sigChan:
			slog.Info("Signal received, stopping", "signal", sig)
			interrupted = true
		}
	} else {
		interrupted = runVisualiser(ctx, window, session, sigChan, logger)
	}

	close(statusDone)
	if err := session.Stop(); err != nil {
		slog.Error("Demux worker failed", "error", err)
	}

	if interrupted {
		slog.Info("Playback interrupted")
	}
	slog.Info("Exiting")
}

// runVisualiser runs the render loop on the calling thread until the window
// is closed, playback completes or a signal arrives. It reports whether a
// signal ended it.
func runVisualiser(ctx context.Context, win *glwindow.Window, session *player.Session, sigChan <-chan os.Signal, logger *slog.Logger) bool {
	loop := visualiser.NewLoop(visualiser.Config{
		TargetFPS: targetFPS,
		VSync:     vsync,
	}, win, win, logger)

	loop.Dispatcher().Register(visualiser.EventKeyDown, visualiser.HandlerFunc(func(ev visualiser.Event) {
		if ev.Key != visualiser.KeySpace {
			return
		}
		if _, err := session.TogglePause(); err != nil {
			slog.Warn("Failed to toggle pause", "error", err)
		}
	}))
	loop.Dispatcher().Register(visualiser.EventResize, visualiser.HandlerFunc(func(ev visualiser.Event) {
		slog.Debug("Window resized", "width", ev.Width, "height", ev.Height)
	}))
	loop.SetVisualisation(glwindow.NewBars(win, session.Analysis))

	var interrupted bool
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-session.Done():
			slog.Info("File completed")
		case sig := <-sigChan:
			slog.Info("Signal received, stopping", "signal", sig)
			interrupted = true
		case <-stop:
			return
		}
		loop.Close()
	}()

	if err := loop.Run(ctx); err != nil {
		slog.Error("Render loop failed", "error", err)
	}
	close(stop)
	<-finished

	slog.Debug("Visualiser closed", "frames", loop.Frames())
	return interrupted
}
