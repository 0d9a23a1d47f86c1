// Package delivery persists generated files: a primary sink (object storage
// or a local directory) with a transient-link fallback.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNoSink is returned when no delivery mechanism is configured
	ErrNoSink = errors.New("no delivery sink configured")

	// ErrDeliveryFailed is returned when both primary and fallback failed
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Sink saves a blob under a filename and returns where it can be fetched
type Sink interface {
	Save(ctx context.Context, blob *Blob, filename string) (string, error)
}

// Options controls a single delivery. The zero value sanitizes the filename
// and falls back to the secondary sink when the primary fails.
type Options struct {
	MimeType     string
	AddTimestamp bool
	KeepFilename bool // skip sanitizing
	NoFallback   bool
}

// Receipt describes a completed delivery
type Receipt struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Location string `json:"location"`
	Fallback bool   `json:"fallback"`
}

// Deliverer runs the delivery pipeline
type Deliverer struct {
	primary  Sink
	fallback Sink
	log      zerolog.Logger
	now      func() time.Time
}

// NewDeliverer creates a Deliverer. fallback may be nil.
func NewDeliverer(primary, fallback Sink, log zerolog.Logger) *Deliverer {
	return &Deliverer{
		primary:  primary,
		fallback: fallback,
		log:      log.With().Str("component", "delivery").Logger(),
		now:      time.Now,
	}
}

// DownloadFile sanitizes and disambiguates the filename, resolves the MIME
// type, builds the blob and hands it to the primary sink. When the primary
// fails and fallback is enabled the fallback sink is tried once; the call
// fails only if both do. With fallback disabled the primary error is
// returned unchanged.
func (d *Deliverer) DownloadFile(ctx context.Context, content interface{}, filename string, opts Options) (*Receipt, error) {
	name := filename
	if !opts.KeepFilename {
		name = SanitizeFilename(name)
	}
	name = GenerateUniqueFilename(name, opts.AddTimestamp, d.now())

	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = GetMimeType(name)
	}

	blob, err := CreateBlob(content, mimeType)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Filename: name,
		MimeType: blob.MimeType,
		Size:     blob.Size(),
	}

	primaryErr := ErrNoSink
	if d.primary != nil {
		location, err := d.primary.Save(ctx, blob, name)
		if err == nil {
			receipt.Location = location
			d.log.Debug().Str("filename", name).Int64("size", receipt.Size).Msg("File delivered")
			return receipt, nil
		}
		primaryErr = err
	}

	if opts.NoFallback || d.fallback == nil {
		return nil, primaryErr
	}

	d.log.Warn().Err(primaryErr).Str("filename", name).Msg("Primary delivery failed, using fallback")

	location, err := d.fallback.Save(ctx, blob, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(primaryErr, err))
	}
	receipt.Location = location
	receipt.Fallback = true
	return receipt, nil
}
