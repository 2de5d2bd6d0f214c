package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

// DownloadParameters describes a bulk download job.
type DownloadParameters struct {
	// CampaignIDs scopes the download to these campaigns. Empty downloads the
	// whole account.
	CampaignIDs []int64
	// EntityTypes lists the record types to download.
	EntityTypes []string
	DataScope   []string
	// LastSyncTime requests only changes made after it.
	LastSyncTime *time.Time

	ResultDirectory     string
	ResultFileName      string
	OverwriteResultFile bool
	// KeepCompressed leaves a zipped result file as downloaded.
	KeepCompressed bool
}

func (p DownloadParameters) validate(now time.Time) error {
	if len(p.EntityTypes) == 0 {
		return &ValidationError{Field: "entity_types", Reason: "at least one entity type is required"}
	}
	for _, t := range p.EntityTypes {
		if _, ok := entity.Lookup(t); !ok {
			return &ValidationError{Field: "entity_types", Reason: fmt.Sprintf("unknown entity type %q; supported: %s", t, strings.Join(entity.Types(), ", "))}
		}
	}
	for _, id := range p.CampaignIDs {
		if id <= 0 {
			return &ValidationError{Field: "campaign_ids", Reason: fmt.Sprintf("campaign id %d must be positive", id)}
		}
	}
	if p.LastSyncTime != nil {
		if p.LastSyncTime.IsZero() {
			return &ValidationError{Field: "last_sync_time", Reason: "must not be the zero time"}
		}
		if p.LastSyncTime.After(now) {
			return &ValidationError{Field: "last_sync_time", Reason: "must not be in the future"}
		}
	}
	return nil
}

// SubmitDownload validates p and submits a download job.
func (m *Manager) SubmitDownload(ctx context.Context, p DownloadParameters) (*operation.Operation, error) {
	if err := p.validate(time.Now()); err != nil {
		return nil, err
	}
	req := transport.DownloadRequest{
		Scope:         transport.ScopeAccount,
		EntityTypes:   p.EntityTypes,
		DataScope:     p.DataScope,
		FormatVersion: m.cfg.FormatVersion.String(),
		FileType:      string(m.cfg.FileType),
		Compression:   "Zip",
	}
	if len(p.CampaignIDs) > 0 {
		req.Scope = transport.ScopeCampaigns
		req.CampaignIDs = p.CampaignIDs
	}
	if p.LastSyncTime != nil {
		t := p.LastSyncTime.UTC()
		req.LastSyncTime = &t
	}

	resp, err := m.remote.SubmitDownload(ctx, req, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to submit download: %w", err)
	}
	m.logger.Info().
		Str("request_id", resp.RequestID).
		Str("scope", req.Scope).
		Strs("entity_types", req.EntityTypes).
		Bool("delta", req.LastSyncTime != nil).
		Msg("download submitted")
	return m.newOperation(operation.Download, resp.RequestID, resp.TrackingID)
}

// DownloadFile runs a download job to completion and returns the local path of
// the result file.
func (m *Manager) DownloadFile(ctx context.Context, p DownloadParameters, progress operation.ProgressFunc) (string, error) {
	op, err := m.SubmitDownload(ctx, p)
	if err != nil {
		return "", err
	}
	defer op.Close()
	return m.trackAndDownload(ctx, op, progress, operation.DownloadOptions{
		Directory:  m.resultDirectory(p.ResultDirectory),
		FileName:   p.ResultFileName,
		Decompress: !p.KeepCompressed,
		Overwrite:  p.OverwriteResultFile,
	})
}

// DownloadEntities runs a download job and returns a Reader over its result.
// Closing the Reader removes the result file.
func (m *Manager) DownloadEntities(ctx context.Context, p DownloadParameters, progress operation.ProgressFunc) (*bulkfile.Reader, error) {
	p.KeepCompressed = false
	path, err := m.DownloadFile(ctx, p, progress)
	if err != nil {
		return nil, err
	}
	return m.OpenResult(path)
}

// OpenResult opens a downloaded result file. Closing the Reader removes the file.
func (m *Manager) OpenResult(path string) (*bulkfile.Reader, error) {
	r, err := bulkfile.Open(path,
		bulkfile.WithFileType(m.cfg.FileType),
		bulkfile.WithVersion(m.cfg.FormatVersion),
		bulkfile.WithDeleteOnClose(true),
		bulkfile.WithFileSystem(m.fs),
		bulkfile.WithLogger(m.logger),
	)
	if err != nil {
		_ = m.fs.Remove(path)
		return nil, err
	}
	return r, nil
}
