package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/drgolem/musicviz/pkg/codec"
	"github.com/drgolem/musicviz/pkg/container"
	"github.com/drgolem/musicviz/pkg/types"

	"github.com/spf13/cobra"
)

var countPackets bool

var probeCmd = &cobra.Command{
	Use:   "probe <media_file>",
	Short: "List the streams of a media file",
	Long: `Open a media file, list its elementary streams and show which audio stream
play and transform would select.

Examples:
  # List streams
  musicviz probe movie.ogv

  # Also read the whole file and count packets per stream
  musicviz probe --count movie.ogv`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolVar(&countPackets, "count", false, "Read the whole file and count packets per stream")
	probeCmd.Flags().BoolP("verbose", "v", false, "Verbose output (debug logging)")
}

func runProbe(cmd *cobra.Command, args []string) {
	fileName := args[0]

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	c, err := container.Open(fileName)
	if err != nil {
		slog.Error("Failed to open file", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	streams := c.Streams()
	fmt.Printf("%s: %d stream(s)\n", filepath.Base(fileName), len(streams))
	for _, s := range streams {
		fmt.Printf("  #%d %-7s %s\n", s.Index, s.Type, describeStream(s))
	}

	selected, err := container.FirstAudioStream(streams)
	if err != nil {
		fmt.Println("No playable audio stream")
	} else {
		fmt.Printf("Selected audio stream: #%d\n", selected.Index)
		if cd, err := codec.New(selected); err != nil {
			fmt.Printf("  codec unavailable: %v\n", err)
		} else {
			rate, channels, bps := cd.Format()
			fmt.Printf("  decodes to %d Hz, %d ch, %d-bit\n", rate, channels, bps)
			cd.Close()
		}
	}

	if !countPackets {
		return
	}

	counts, bytes, err := readAllPackets(c)
	if err != nil {
		slog.Error("Failed to read packets", "error", err)
		os.Exit(1)
	}
	fmt.Println("Packets:")
	for _, s := range streams {
		fmt.Printf("  #%d %d packets, %d bytes\n", s.Index, counts[s.Index], bytes[s.Index])
	}
}

func describeStream(s types.StreamInfo) string {
	if s.Type != types.MediaAudio {
		if s.Codec == "" {
			return "-"
		}
		return s.Codec
	}
	return fmt.Sprintf("%s %d Hz, %d ch", s.Codec, s.SampleRate, s.Channels)
}

// readAllPackets reads c to the end and returns packet and byte counts per
// stream index.
func readAllPackets(c types.Container) (map[int]int, map[int]int, error) {
	counts := make(map[int]int)
	bytes := make(map[int]int)
	for {
		pkt, err := c.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return counts, bytes, nil
			}
			return nil, nil, err
		}
		counts[pkt.StreamIndex]++
		bytes[pkt.StreamIndex] += pkt.Size()
	}
}
