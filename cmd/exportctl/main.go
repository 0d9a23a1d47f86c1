package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/pdfdoc"
	"github.com/document-export-api/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

func main() {
	var (
		input      string
		formats    string
		outputDir  string
		configPath string
		defaults   string
		fontPath   string
		sequential bool
		delay      time.Duration
	)

	flag.StringVar(&input, "in", "-", "export request JSON file, - for stdin")
	flag.StringVar(&formats, "formats", "", "comma separated formats (default: formats from the request)")
	flag.StringVar(&outputDir, "out", "./exports", "output directory")
	flag.StringVar(&configPath, "config", "", "JSON file with config overrides")
	flag.StringVar(&defaults, "defaults", os.Getenv("EXPORT_DEFAULTS_FILE"), "YAML export defaults file")
	flag.StringVar(&fontPath, "font", os.Getenv("PDF_FONT_REGULAR"), "TrueType font for PDF output")
	flag.BoolVar(&sequential, "sequential", false, "write files one at a time")
	flag.DurationVar(&delay, "delay", 100*time.Millisecond, "pause between files in sequential mode")
	flag.Parse()

	log := logger.New(logger.Options{Format: "pretty", Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("Received shutdown signal")
		cancel()
	}()

	req, err := readRequest(input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read export request")
	}
	if formats != "" {
		req.Formats = splitFormats(formats)
	}
	if len(req.Formats) == 0 {
		log.Fatal().Msg("No formats requested, use -formats")
	}
	if configPath != "" {
		patch, err := os.ReadFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read config overrides")
		}
		req.Config = patch
	}

	if err := pdfdoc.SetupFonts(fontPath, ""); err != nil {
		log.Warn().Err(err).Msg("PDF font unavailable, falling back to Helvetica")
	}

	defs, err := exportconfig.LoadDefaultsFile(defaults)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load export defaults")
	}

	store, err := delivery.NewLocalSink(outputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare output directory")
	}

	// render everything first, then write the batch
	exp := exporter.New(exporter.NewRegistry(log), defs, nil, log)
	patch := exportconfig.SetOption(req.Config, "autoDownload", false, true)

	var files []delivery.File
	failed := 0
	for _, format := range req.Formats {
		result := exp.Export(ctx, &req.Data, req.Columns, format, patch)
		for _, w := range result.Warnings {
			log.Warn().Str("format", format).Msg(w)
		}
		if !result.Success {
			failed++
			log.Error().Str("format", format).Strs("errors", result.Errors).Msg("Export failed")
			continue
		}
		opts := delivery.Options{MimeType: result.MimeType}
		files = append(files, delivery.File{Content: result.Content, Filename: result.Filename, Options: &opts})
	}

	if len(files) > 0 {
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Writing files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)

		deliverer := delivery.NewDeliverer(store, nil, log)
		results := deliverer.DownloadMultipleFiles(ctx, files, delivery.BatchOptions{
			Sequential: sequential,
			Delay:      delay,
			OnProgress: func(result delivery.BatchResult, completed, total int) {
				_ = bar.Add(1)
			},
		})

		for _, r := range results {
			if !r.Success {
				failed++
				log.Error().Str("filename", r.Filename).Str("error", r.Error).Msg("Failed to write file")
				continue
			}
			fmt.Println(r.Receipt.Location)
		}
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Int("requested", len(req.Formats)).Msg("Export finished with errors")
		os.Exit(1)
	}
}

// readRequest accepts a full export request or a bare data object
func readRequest(path string) (*models.ExportRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var req models.ExportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}
	if req.Data.IsEmpty() {
		if err := json.Unmarshal(raw, &req.Data); err != nil {
			return nil, fmt.Errorf("invalid data JSON: %w", err)
		}
	}
	return &req, nil
}

func splitFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
