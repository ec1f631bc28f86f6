package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/drgolem/musicviz/internal/player"
	"github.com/drgolem/musicviz/pkg/codec"
	"github.com/drgolem/musicviz/pkg/container"
	"github.com/drgolem/musicviz/pkg/decoder"
	"github.com/drgolem/musicviz/pkg/packetqueue"

	"github.com/spf13/cobra"
	wav "github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"
	"golang.org/x/sync/errgroup"
)

// resampleQualities maps --quality values to SoX quality recipes.
var resampleQualities = map[string]int{
	"quick":    soxr.Quick,
	"low":      soxr.LowQ,
	"medium":   soxr.MediumQ,
	"high":     soxr.HighQ,
	"veryhigh": soxr.VeryHighQ,
}

var transformCmd = &cobra.Command{
	Use:   "transform <input_file>",
	Short: "Transform audio file sample rate and format",
	Long: `Decode the audio stream of a file, resample it and write it as a WAV file.
The file goes through the same demux, packet queue and decoder path used for
playback, so this is also a quick way to check that a file decodes cleanly.

Examples:
  # Transform Ogg Vorbis to 48kHz WAV
  musicviz transform input.ogg --new-samplerate 48000 --out output.wav

  # Transform MP3 to 44.1kHz mono WAV
  musicviz transform input.mp3 --new-samplerate 44100 --mono --out output.wav

  # Transform WAV with default settings (48kHz)
  musicviz transform input.wav

  # Fast, lower quality resampling
  musicviz transform input.ogg --new-samplerate 22050 --quality quick

Supported Input Formats:
  - Ogg Vorbis (.ogg, .oga)
  - MP3 (.mp3)
  - WAV (.wav)

Output Format:
  - WAV (16-bit PCM)

Sample Rate Options:
  Common rates: 8000, 16000, 22050, 44100, 48000, 96000, 192000 Hz`,
	Args: cobra.ExactArgs(1),
	Run:  runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().Int("new-samplerate", 48000, "Target sample rate in Hz")
	transformCmd.Flags().String("out", "out_transformed.wav", "Output WAV file path")
	transformCmd.Flags().Bool("mono", false, "Convert output to mono signal (average channels)")
	transformCmd.Flags().String("quality", "high", "Resampling quality: quick, low, medium, high, veryhigh")
	transformCmd.Flags().BoolP("verbose", "v", false, "Enable verbose (debug) logging")
}

func runTransform(cmd *cobra.Command, args []string) {
	inFileName := args[0]

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	if _, err := os.Stat(inFileName); os.IsNotExist(err) {
		slog.Error("Input file not found", "path", inFileName)
		os.Exit(1)
	}

	newSampleRate, err := cmd.Flags().GetInt("new-samplerate")
	if err != nil {
		slog.Error("Failed to get new-samplerate flag", "error", err)
		os.Exit(1)
	}

	outFileName, err := cmd.Flags().GetString("out")
	if err != nil {
		slog.Error("Failed to get out flag", "error", err)
		os.Exit(1)
	}

	convertToMono, err := cmd.Flags().GetBool("mono")
	if err != nil {
		slog.Error("Failed to get mono flag", "error", err)
		os.Exit(1)
	}

	qualityName, err := cmd.Flags().GetString("quality")
	if err != nil {
		slog.Error("Failed to get quality flag", "error", err)
		os.Exit(1)
	}
	quality, ok := resampleQualities[qualityName]
	if !ok {
		slog.Error("Invalid resampling quality", "quality", qualityName)
		os.Exit(1)
	}

	if newSampleRate <= 0 || newSampleRate > 384000 {
		slog.Error("Invalid sample rate", "rate", newSampleRate, "valid_range", "1-384000")
		os.Exit(1)
	}

	c, err := container.Open(inFileName)
	if err != nil {
		slog.Error("Failed to open input", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	stream, err := container.FirstAudioStream(c.Streams())
	if err != nil {
		slog.Error("Failed to select audio stream", "error", err)
		os.Exit(1)
	}

	cd, err := codec.New(stream)
	if err != nil {
		slog.Error("Failed to create codec", "error", err)
		os.Exit(1)
	}
	defer cd.Close()

	inSampleRate, channels, bitsPerSample := cd.Format()

	slog.Info("Audio transformation starting",
		"input_file", inFileName,
		"stream", stream.Index,
		"codec", stream.Codec,
		"input_sample_rate", inSampleRate,
		"input_channels", channels,
		"input_bits_per_sample", bitsPerSample,
		"output_sample_rate", newSampleRate,
		"output_mono", convertToMono,
		"resample_quality", qualityName,
		"output_file", outFileName)

	queue := packetqueue.New()
	dec, err := decoder.New(queue, cd,
		decoder.WithOutputRate(newSampleRate),
		decoder.WithQuality(quality))
	if err != nil {
		slog.Error("Failed to create decoder", "error", err)
		os.Exit(1)
	}
	defer dec.Close()

	worker := &player.DemuxWorker{
		Container:     c,
		StreamIndex:   stream.Index,
		Queue:         queue,
		MaxQueueBytes: player.DefaultConfig().MaxQueueBytes,
	}

	var g errgroup.Group
	g.Go(func() error {
		return worker.Run(context.Background())
	})

	slog.Info("Decoding audio data")
	outputData, err := decodeAllAudio(dec, channels, bitsPerSample)
	if err != nil {
		queue.Abort()
		g.Wait()
		slog.Error("Failed to decode audio", "error", err)
		os.Exit(1)
	}
	if err := g.Wait(); err != nil {
		slog.Error("Demux failed", "error", err)
		os.Exit(1)
	}

	stats := dec.Stats()
	bytesPerSample := bitsPerSample / 8
	outSamples := len(outputData) / (channels * bytesPerSample)

	slog.Info("Decoding complete",
		"packets", stats.Packets,
		"decode_errors", stats.Errors,
		"dropped_bytes", stats.Dropped,
		"other_stream_packets", worker.Dropped(),
		"output_samples", outSamples,
		"output_bytes", len(outputData))

	outChannels := channels
	if convertToMono && channels > 1 {
		slog.Info("Converting to mono", "input_channels", channels)
		outputData = convertToMono16Bit(outputData, channels)
		outChannels = 1
		slog.Info("Mono conversion complete", "output_channels", 1)
	}

	slog.Info("Writing output WAV file", "path", outFileName)
	if err := writeWAVFile(outFileName, outputData, uint32(outSamples), uint16(outChannels), uint32(newSampleRate), uint16(bitsPerSample)); err != nil {
		slog.Error("Failed to write WAV file", "error", err)
		os.Exit(1)
	}

	slog.Info("Transformation complete",
		"output_samples", outSamples,
		"sample_rate_ratio", fmt.Sprintf("%.3f", float64(newSampleRate)/float64(inSampleRate)))
}

// decodeAllAudio reads the decoder until end of stream into memory
func decodeAllAudio(dec *decoder.Decoder, channels, bitsPerSample int) ([]byte, error) {
	const bufferSamples = 4096
	bufferSize := bufferSamples * channels * bitsPerSample / 8

	buffer := make([]byte, bufferSize)
	audioData := make([]byte, 0, bufferSize*10)

	for {
		n, err := dec.DecodeInto(buffer)
		if n > 0 {
			audioData = append(audioData, buffer[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return audioData, nil
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
	}
}

// convertToMono16Bit converts stereo (or multi-channel) 16-bit audio to mono by averaging channels
func convertToMono16Bit(stereoData []byte, channels int) []byte {
	if channels == 1 {
		return stereoData
	}

	frameSize := channels * 2
	monoData := make([]byte, len(stereoData)/frameSize*2)

	outIdx := 0
	for idx := 0; idx+frameSize <= len(stereoData); idx += frameSize {
		sum := int32(0)
		for ch := 0; ch < channels; ch++ {
			// 16-bit little-endian
			off := idx + ch*2
			sum += int32(int16(uint16(stereoData[off]) | uint16(stereoData[off+1])<<8))
		}

		avgSample := int16(sum / int32(channels))
		monoData[outIdx] = byte(avgSample)
		monoData[outIdx+1] = byte(avgSample >> 8)
		outIdx += 2
	}

	return monoData
}

// writeWAVFile writes audio data to a WAV file
func writeWAVFile(fileName string, audioData []byte, numSamples uint32, numChannels uint16, sampleRate uint32, bitsPerSample uint16) error {
	fOut, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fOut.Close()

	wavWriter := wav.NewWriter(fOut, numSamples, numChannels, sampleRate, bitsPerSample)

	if _, err := wavWriter.Write(audioData); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return nil
}
