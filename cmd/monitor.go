package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/drgolem/musicviz/pkg/types"
)

// monitorPlayback monitors and logs playback status every 2 seconds for any PlaybackMonitor
func monitorPlayback(monitor types.PlaybackMonitor, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.GetPlaybackStatus()
			if status.SampleRate == 0 {
				continue
			}

			playedTime := time.Duration(float64(status.PlayedSamples) / float64(status.SampleRate) * float64(time.Second))
			bufferedTimeSeconds := float64(status.BufferedSamples) / float64(status.SampleRate)

			formatStr := fmt.Sprintf("%d:%d:%d",
				status.SampleRate, status.BitsPerSample, status.Channels)

			deviceStr := fmt.Sprintf("%dHz:%dbit:%dch:%dframes",
				status.SampleRate, status.BitsPerSample, status.Channels, status.FramesPerBuffer)

			slog.Info("Playback status",
				"file", status.FileName,
				"format", formatStr,
				"device", deviceStr,
				"played", formatClock(playedTime),
				"delayed", fmt.Sprintf("%.3fs", bufferedTimeSeconds),
				"queued_packets", status.QueuedPackets,
				"decode_errors", status.DecodeErrors,
				"elapsed", formatClock(status.ElapsedTime))
		case <-done:
			return
		}
	}
}

// formatClock formats d as hh:mm:ss.msec
func formatClock(d time.Duration) string {
	totalMilliseconds := d.Milliseconds()
	hours := totalMilliseconds / 3600000
	minutes := (totalMilliseconds % 3600000) / 60000
	seconds := (totalMilliseconds % 60000) / 1000
	milliseconds := totalMilliseconds % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}
