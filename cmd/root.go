package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "musicviz",
	Short: "Audio player with a real-time spectrum visualiser",
	Long: `musicviz - plays a local media file and renders a live visualisation of
the audio in a window.

The container is demultiplexed on a background worker, audio packets are decoded
on demand inside the audio callback, and every decoded buffer is analysed before
it is played. Output is held back by a short circular buffer so the picture is
drawn slightly ahead of the sound it shows.

Features:
  - Ogg Vorbis, WAV (8/16/24/32-bit PCM) and MP3 input
  - FFT spectrum bars, level meter and waveform (OpenGL)
  - Automatic resampling when the device rejects the stream's sample rate
  - Configurable delay depth, frame rate, vsync and audio device

Commands:
  - play: Play a file with the visualiser
  - probe: List the streams of a container
  - transform: Decode a file and write it as 16-bit WAV`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging installs a text logger on stderr as the default logger.
func setupLogging(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
