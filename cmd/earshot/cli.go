package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/sensitivity"
	"github.com/MrWong99/earshot/pkg/audio"
)

// meterWidth is the number of cells in the volume bar.
const meterWidth = 40

// printProfiles writes the built-in presets and environment labels.
func printProfiles(w io.Writer) {
	table := sensitivity.Default()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRESET\tTHRESHOLD\tSILENCE\tMIN RECORDING\tDESCRIPTION")
	for _, p := range table.Presets() {
		fmt.Fprintf(tw, "%s\t%.3f\t%s\t%s\t%s\n", p.Name, p.Threshold, p.SilenceDuration, p.MinRecording, p.Description)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ENVIRONMENT\tPRESET")
	for _, e := range table.Environments() {
		fmt.Fprintf(tw, "%s\t%s\n", e.Label, e.Preset)
	}
	_ = tw.Flush()
}

// runMeter prints a live volume bar until ctx is done. It checks ctx between
// reads, so it stops within one chunk period of a signal.
func runMeter(ctx context.Context, device audio.Device, cfg audio.StreamConfig) int {
	stream, err := device.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "earshot: open device: %v\n", err)
		return 1
	}
	defer stream.Close()

	analyzer := audio.NewAnalyzer()
	for ctx.Err() == nil {
		chunk, err := stream.Read()
		if errors.Is(err, audio.ErrOverflow) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nearshot: read: %v\n", err)
			return 1
		}
		raw, smoothed := analyzer.Analyze(chunk.Data)
		fmt.Fprintf(os.Stderr, "\r[%s] %.4f (avg %.4f)", volumeBar(smoothed), raw, smoothed)
	}
	fmt.Fprintln(os.Stderr)
	return 0
}

// volumeBar renders v in [0, 1] as a bar of meterWidth cells. Speech rarely
// exceeds 0.1, so the scale is stretched tenfold.
func volumeBar(v float64) string {
	n := min(int(v*10*meterWidth), meterWidth)
	n = max(n, 0)
	return strings.Repeat("#", n) + strings.Repeat(" ", meterWidth-n)
}

// printStartupSummary prints the resolved configuration in a box.
func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Earshot · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerValue(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	printRow("Audio", providerValue(cfg.Providers.Audio.Name, cfg.Capture.Device))
	if cfg.Capture.Override != nil {
		printRow("Profile", sensitivity.CustomName)
	} else {
		printRow("Profile", cfg.Capture.Profile)
	}
	printRow("Max duration", cfg.Capture.MaxDuration.String())
	printRow("Timeout", cfg.Transcription.Timeout.String())
	printRow("Vocabulary", fmt.Sprintf("%d terms", len(cfg.Transcription.Vocabulary)))
	if cfg.Journal.PostgresDSN != "" {
		printRow("Journal", "postgres")
	} else {
		printRow("Journal", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerValue(name, detail string) string {
	if name == "" {
		return "(not configured)"
	}
	if detail != "" {
		return name + " / " + detail
	}
	return name
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
