package delivery

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalSink writes files into a directory
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed
func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

// Dir returns the output directory
func (s *LocalSink) Dir() string {
	return s.dir
}

// Save writes the blob and returns the file path
func (s *LocalSink) Save(ctx context.Context, blob *Blob, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

// Link is a transient download handle for a locally stored file
type Link struct {
	Token     string    `json:"token"`
	Path      string    `json:"-"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkRegistry hands out short-lived download tokens and removes the backing
// file once a token is revoked or expires.
type LinkRegistry struct {
	mu      sync.Mutex
	links   map[string]*Link
	timers  map[string]*time.Timer
	baseURL string
	ttl     time.Duration
	log     zerolog.Logger
}

// NewLinkRegistry creates a registry whose links live for ttl
func NewLinkRegistry(baseURL string, ttl time.Duration, log zerolog.Logger) *LinkRegistry {
	return &LinkRegistry{
		links:   make(map[string]*Link),
		timers:  make(map[string]*time.Timer),
		baseURL: baseURL,
		ttl:     ttl,
		log:     log.With().Str("component", "links").Logger(),
	}
}

// Create registers a file and schedules its revocation
func (r *LinkRegistry) Create(path, filename, mimeType string, size int64) *Link {
	link := &Link{
		Token:     uuid.NewString(),
		Path:      path,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      size,
		ExpiresAt: time.Now().Add(r.ttl),
	}

	r.mu.Lock()
	r.links[link.Token] = link
	r.timers[link.Token] = time.AfterFunc(r.ttl, func() { r.Revoke(link.Token) })
	r.mu.Unlock()

	return link
}

// Get returns a live link
func (r *LinkRegistry) Get(token string) (*Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[token]
	if !ok || time.Now().After(link.ExpiresAt) {
		return nil, false
	}
	return link, true
}

// Revoke invalidates a token and deletes its file. Unknown tokens are ignored.
func (r *LinkRegistry) Revoke(token string) {
	r.mu.Lock()
	link, ok := r.links[token]
	if ok {
		delete(r.links, token)
		if t := r.timers[token]; t != nil {
			t.Stop()
		}
		delete(r.timers, token)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := os.Remove(link.Path); err != nil && !os.IsNotExist(err) {
		r.log.Warn().Err(err).Str("token", token).Msg("Failed to remove revoked file")
	}
}

// Close revokes every outstanding link
func (r *LinkRegistry) Close() {
	r.mu.Lock()
	tokens := make([]string, 0, len(r.links))
	for token := range r.links {
		tokens = append(tokens, token)
	}
	r.mu.Unlock()

	for _, token := range tokens {
		r.Revoke(token)
	}
}

// URL builds the public download URL for a token
func (r *LinkRegistry) URL(token string) string {
	return r.baseURL + "/v1/files/" + url.PathEscape(token)
}

// Len returns the number of live links
func (r *LinkRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// LinkSink stores files locally behind transient download links
type LinkSink struct {
	store *LocalSink
	links *LinkRegistry
}

// NewLinkSink creates a LinkSink
func NewLinkSink(store *LocalSink, links *LinkRegistry) *LinkSink {
	return &LinkSink{store: store, links: links}
}

// Save writes the blob under a unique name and returns a link URL
func (s *LinkSink) Save(ctx context.Context, blob *Blob, filename string) (string, error) {
	path, err := s.store.Save(ctx, blob, uuid.NewString()+"-"+filepath.Base(filename))
	if err != nil {
		return "", err
	}
	link := s.links.Create(path, filename, blob.MimeType, blob.Size())
	return s.links.URL(link.Token), nil
}
