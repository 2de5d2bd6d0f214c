package operation

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/infobloxopen/cq-source-bulk/internal/archive"
	"github.com/infobloxopen/cq-source-bulk/internal/fsutil"
)

// DefaultPollInterval is the wait between two status polls of Track.
const DefaultPollInterval = 5 * time.Second

// StatusClient fetches the remote status of a job.
type StatusClient interface {
	GetStatus(ctx context.Context, kind Kind, requestID, trackingID string) (*Status, error)
}

// Downloader transfers a remote file to a local path.
type Downloader interface {
	Download(ctx context.Context, fileURL, dst string) error
}

// Client is the remote surface an Operation needs.
type Client interface {
	StatusClient
	Downloader
}

// ProgressFunc is called with the status obtained by every poll of Track.
type ProgressFunc func(Status)

type options struct {
	pollInterval time.Duration
	fs           fsutil.FileSystem
	codec        archive.Codec
	logger       zerolog.Logger
}

// Option configures an Operation.
type Option func(*options)

// WithPollInterval sets the wait between polls. Non-positive values keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFileSystem sets the file system used for result files.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithArchive sets the codec used to decompress result files.
func WithArchive(c archive.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the operation logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Operation is a handle on one remote job. It is created on submit, or from a
// saved request id to resume tracking an earlier job.
type Operation struct {
	kind       Kind
	requestID  string
	trackingID string
	client     Client
	opts       options
	logger     zerolog.Logger

	mu     sync.Mutex
	status *Status
	closed bool
}

// New returns a handle on the job requestID of the given kind.
func New(kind Kind, requestID, trackingID string, client Client, opts ...Option) (*Operation, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request id is required")
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	o := options{
		pollInterval: DefaultPollInterval,
		fs:           fsutil.OS{},
		codec:        archive.Zip{},
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Operation{
		kind:       kind,
		requestID:  requestID,
		trackingID: trackingID,
		client:     client,
		opts:       o,
		logger:     o.logger.With().Str("kind", string(kind)).Str("request_id", requestID).Logger(),
	}, nil
}

func (o *Operation) Kind() Kind         { return o.kind }
func (o *Operation) RequestID() string  { return o.requestID }
func (o *Operation) TrackingID() string { return o.trackingID }

// LastStatus returns the status of the most recent poll, or nil before the first.
func (o *Operation) LastStatus() *Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == nil {
		return nil
	}
	return o.status.clone()
}

// GetStatus polls the remote status once and caches it. Errors are returned
// unchanged and are not retried.
func (o *Operation) GetStatus(ctx context.Context) (*Status, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := o.client.GetStatus(ctx, o.kind, o.requestID, o.trackingID)
	if err != nil {
		return nil, err
	}
	if s.RequestID == "" {
		s.RequestID = o.requestID
	}
	o.mu.Lock()
	o.status = s.clone()
	o.mu.Unlock()
	return s, nil
}

// Track polls until the job reaches a terminal state. The first poll is
// immediate. A job ending Failed, Expired or Aborted yields a *FailedError
// along with its status; CompletedWithErrors is returned as a status.
func (o *Operation) Track(ctx context.Context, progress ProgressFunc) (*Status, error) {
	for polls := 1; ; polls++ {
		s, err := o.GetStatus(ctx)
		if err != nil {
			return nil, err
		}
		o.logger.Debug().Str("state", string(s.State)).Int("percent", s.PercentComplete).Int("poll", polls).Msg("polled operation status")
		if progress != nil {
			progress(*s)
		}
		if s.State.Terminal() {
			if s.State.Failed() {
				return s, &FailedError{Kind: o.kind, RequestID: o.requestID, Status: s}
			}
			o.logger.Info().Str("state", string(s.State)).Int("polls", polls).Msg("operation finished")
			return s, nil
		}
		if err := wait(ctx, o.opts.pollInterval); err != nil {
			return nil, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DownloadOptions controls where DownloadResultFile puts the result file.
type DownloadOptions struct {
	// Directory receives the result file. It is created if missing.
	Directory string
	// FileName names the local file. Empty keeps the remote name, or the name
	// of the archive entry when decompressing.
	FileName string
	// Decompress extracts the single file of a zipped result and removes the archive.
	Decompress bool
	// Overwrite replaces an existing local file instead of failing.
	Overwrite bool
}

// DownloadResultFile retrieves the result file of a finished job and returns
// its local path. The job must have been tracked to a successful terminal state.
func (o *Operation) DownloadResultFile(ctx context.Context, opts DownloadOptions) (string, error) {
	if o.isClosed() {
		return "", ErrClosed
	}
	s := o.LastStatus()
	switch {
	case s == nil || !s.State.Terminal():
		return "", ErrNotTerminal
	case s.State.Failed():
		return "", &FailedError{Kind: o.kind, RequestID: o.requestID, Status: s}
	case s.ResultFileURL == "":
		return "", ErrNoResultFile
	}
	if opts.Directory == "" {
		return "", fmt.Errorf("result directory is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fs := o.opts.fs
	if err := fs.MkdirAll(opts.Directory); err != nil {
		return "", err
	}

	download := filepath.Join(opts.Directory, "."+o.requestID+".download")
	defer fs.Remove(download)
	if err := o.client.Download(ctx, s.ResultFileURL, download); err != nil {
		return "", fmt.Errorf("failed to download result file: %w", err)
	}

	src, name := download, opts.FileName
	if opts.Decompress {
		zipped, err := archive.IsZip(download)
		if err != nil {
			return "", err
		}
		if zipped {
			staging := filepath.Join(opts.Directory, "."+o.requestID+".extract")
			if err := fs.MkdirAll(staging); err != nil {
				return "", err
			}
			defer fs.RemoveAll(staging)
			extracted, err := o.opts.codec.Extract(download, staging)
			if err != nil {
				return "", fmt.Errorf("failed to decompress result file: %w", err)
			}
			src = extracted
			if name == "" {
				name = filepath.Base(extracted)
			}
		}
	}
	if name == "" {
		name = remoteName(s.ResultFileURL, o.requestID)
	}

	dst := filepath.Join(opts.Directory, name)
	if !opts.Overwrite {
		exists, err := fs.Exists(dst)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%s: %w", dst, ErrFileExists)
		}
	}
	if err := fs.Rename(src, dst); err != nil {
		return "", err
	}
	o.logger.Info().Str("path", dst).Msg("downloaded result file")
	return dst, nil
}

// remoteName is the last path segment of fileURL, or the request id with a
// zip extension when the URL has none.
func remoteName(fileURL, requestID string) string {
	if u, err := url.Parse(fileURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" && !strings.HasPrefix(base, ".") {
			return base
		}
	}
	return requestID + ".zip"
}

// Close releases the operation. Every later call fails with ErrClosed.
func (o *Operation) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *Operation) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
