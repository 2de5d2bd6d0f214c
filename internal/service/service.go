// Package service orchestrates bulk jobs end to end: it validates parameters,
// submits jobs, tracks them to completion and moves bulk files between the
// local working directory and the remote service.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/infobloxopen/cq-source-bulk/internal/archive"
	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/fsutil"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

// Remote is the remote job contract the Manager drives.
type Remote interface {
	operation.Client
	SubmitDownload(ctx context.Context, req transport.DownloadRequest, trackingID string) (*transport.SubmitResponse, error)
	SubmitUpload(ctx context.Context, req transport.UploadRequest, trackingID string) (*transport.SubmitResponse, error)
	SubmitReport(ctx context.Context, req transport.ReportRequest, trackingID string) (*transport.SubmitResponse, error)
	Upload(ctx context.Context, uploadURL, src, trackingID string) error
}

// Config holds Manager settings shared by every job.
type Config struct {
	// WorkingDirectory holds temporary upload files and, unless a job says
	// otherwise, result files.
	WorkingDirectory string
	PollInterval     time.Duration
	FormatVersion    mapping.Version
	FileType         bulkfile.FileType
	// CompressUpload zips upload files before transfer.
	CompressUpload bool
	// Concurrency bounds the operations TrackAll waits on at once.
	Concurrency int
}

// DefaultConcurrency is the TrackAll worker limit when none is configured.
const DefaultConcurrency = 4

func (c *Config) setDefaults() {
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = filepath.Join(os.TempDir(), "cq-source-bulk")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = operation.DefaultPollInterval
	}
	if c.FormatVersion.IsZero() {
		c.FormatVersion = mapping.CurrentVersion
	}
	if c.FileType == "" {
		c.FileType = bulkfile.CSV
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Manager runs bulk jobs against a Remote.
type Manager struct {
	remote Remote
	cfg    Config
	fs     fsutil.FileSystem
	codec  archive.Codec
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the Manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFileSystem sets the file system used for local files.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(m *Manager) {
		if fs != nil {
			m.fs = fs
		}
	}
}

// WithArchive sets the codec used to compress uploads and extract results.
func WithArchive(c archive.Codec) Option {
	return func(m *Manager) {
		if c != nil {
			m.codec = c
		}
	}
}

// NewManager returns a Manager for remote.
func NewManager(remote Remote, cfg Config, opts ...Option) (*Manager, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote is required")
	}
	cfg.setDefaults()
	m := &Manager{
		remote: remote,
		cfg:    cfg,
		fs:     fsutil.OS{},
		codec:  archive.Zip{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Resume returns a handle on an earlier job, to track it or fetch its result.
func (m *Manager) Resume(kind operation.Kind, requestID, trackingID string) (*operation.Operation, error) {
	if requestID == "" {
		return nil, &ValidationError{Field: "request_id", Reason: "is required"}
	}
	if _, err := operation.ParseKind(string(kind)); err != nil {
		return nil, &ValidationError{Field: "kind", Reason: err.Error()}
	}
	return m.newOperation(kind, requestID, trackingID)
}

func (m *Manager) newOperation(kind operation.Kind, requestID, trackingID string) (*operation.Operation, error) {
	return operation.New(kind, requestID, trackingID, m.remote,
		operation.WithPollInterval(m.cfg.PollInterval),
		operation.WithFileSystem(m.fs),
		operation.WithArchive(m.codec),
		operation.WithLogger(m.logger),
	)
}

func (m *Manager) resultDirectory(dir string) string {
	if dir != "" {
		return dir
	}
	return m.cfg.WorkingDirectory
}

// trackAndDownload waits for op and fetches its result file.
func (m *Manager) trackAndDownload(ctx context.Context, op *operation.Operation, progress operation.ProgressFunc, opts operation.DownloadOptions) (string, error) {
	s, err := op.Track(ctx, progress)
	if err != nil {
		return "", err
	}
	if s.State == operation.CompletedWithErrors {
		m.logger.Warn().Str("request_id", op.RequestID()).Int("errors", len(s.Errors)).Msg("operation completed with errors")
	}
	return op.DownloadResultFile(ctx, opts)
}
