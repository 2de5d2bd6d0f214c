package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

// Response modes of an upload job.
const (
	ErrorsOnly       = "ErrorsOnly"
	ErrorsAndResults = "ErrorsAndResults"
)

// UploadParameters are the settings shared by file and entity uploads.
type UploadParameters struct {
	// ResponseMode selects the rows of the result file. Empty means ErrorsAndResults.
	ResponseMode string
	// RenameToRequestID renames the upload file after the job's request id
	// before it is sent.
	RenameToRequestID bool

	ResultDirectory     string
	ResultFileName      string
	OverwriteResultFile bool
}

func (p *UploadParameters) validate() error {
	switch p.ResponseMode {
	case "":
		p.ResponseMode = ErrorsAndResults
	case ErrorsOnly, ErrorsAndResults:
	default:
		return &ValidationError{Field: "response_mode", Reason: fmt.Sprintf("unsupported %q; supported: %s, %s", p.ResponseMode, ErrorsOnly, ErrorsAndResults)}
	}
	return nil
}

// FileUploadParameters uploads an existing bulk file.
type FileUploadParameters struct {
	UploadParameters
	Path string
}

// EntityUploadParameters uploads entities written to a temporary bulk file.
type EntityUploadParameters struct {
	UploadParameters
	Entities []entity.Entity
}

// SubmitUpload validates p, sends the file and returns the upload job. With
// RenameToRequestID the file at p.Path is moved to its new name.
func (m *Manager) SubmitUpload(ctx context.Context, p FileUploadParameters) (*operation.Operation, error) {
	if err := m.validateFile(&p); err != nil {
		return nil, err
	}
	op, _, err := m.upload(ctx, p.Path, p.UploadParameters)
	return op, err
}

func (m *Manager) validateFile(p *FileUploadParameters) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Path == "" {
		return &ValidationError{Field: "path", Reason: "is required"}
	}
	ok, err := m.fs.Exists(p.Path)
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Field: "path", Reason: fmt.Sprintf("%s does not exist", p.Path)}
	}
	return nil
}

// upload submits the job and sends the file at path. It returns the path the
// file ended up at.
func (m *Manager) upload(ctx context.Context, path string, p UploadParameters) (*operation.Operation, string, error) {
	resp, err := m.remote.SubmitUpload(ctx, transport.UploadRequest{ResponseMode: p.ResponseMode}, uuid.NewString())
	if err != nil {
		return nil, path, fmt.Errorf("failed to submit upload: %w", err)
	}

	send := path
	if p.RenameToRequestID {
		renamed := filepath.Join(filepath.Dir(path), resp.RequestID+filepath.Ext(path))
		if err := m.fs.Rename(path, renamed); err != nil {
			return nil, path, err
		}
		path, send = renamed, renamed
	}
	if m.cfg.CompressUpload {
		if err := m.fs.MkdirAll(m.cfg.WorkingDirectory); err != nil {
			return nil, path, err
		}
		zipped := filepath.Join(m.cfg.WorkingDirectory, uuid.NewString()+".zip")
		defer func() { _ = m.fs.Remove(zipped) }()
		if err := m.codec.Compress(send, zipped); err != nil {
			return nil, path, fmt.Errorf("failed to compress upload file: %w", err)
		}
		send = zipped
	}

	if err := m.remote.Upload(ctx, resp.UploadURL, send, resp.TrackingID); err != nil {
		return nil, path, fmt.Errorf("failed to upload %s: %w", filepath.Base(send), err)
	}
	m.logger.Info().Str("request_id", resp.RequestID).Str("file", filepath.Base(send)).Msg("upload submitted")

	op, err := m.newOperation(operation.Upload, resp.RequestID, resp.TrackingID)
	return op, path, err
}

// UploadFile runs an upload job to completion and returns the local path of
// its result file.
func (m *Manager) UploadFile(ctx context.Context, p FileUploadParameters, progress operation.ProgressFunc) (string, error) {
	op, err := m.SubmitUpload(ctx, p)
	if err != nil {
		return "", err
	}
	defer op.Close()
	return m.trackUpload(ctx, op, p.UploadParameters, progress)
}

func (m *Manager) trackUpload(ctx context.Context, op *operation.Operation, p UploadParameters, progress operation.ProgressFunc) (string, error) {
	return m.trackAndDownload(ctx, op, progress, operation.DownloadOptions{
		Directory:  m.resultDirectory(p.ResultDirectory),
		FileName:   p.ResultFileName,
		Decompress: true,
		Overwrite:  p.OverwriteResultFile,
	})
}

// UploadEntities writes p.Entities to a temporary bulk file, runs the upload
// job and returns a Reader over the result file. The temporary file is
// removed on every path; closing the Reader removes the result file.
func (m *Manager) UploadEntities(ctx context.Context, p EntityUploadParameters, progress operation.ProgressFunc) (*bulkfile.Reader, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(p.Entities) == 0 {
		return nil, &ValidationError{Field: "entities", Reason: "at least one entity is required"}
	}
	for i, e := range p.Entities {
		if _, err := entity.DescriptorFor(e); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("entities[%d]", i), Reason: err.Error()}
		}
	}

	if err := m.fs.MkdirAll(m.cfg.WorkingDirectory); err != nil {
		return nil, err
	}
	tmp := filepath.Join(m.cfg.WorkingDirectory, uuid.NewString()+m.cfg.FileType.Extension())
	defer func() { _ = m.fs.Remove(tmp) }()

	w, err := bulkfile.Create(tmp,
		bulkfile.WithFileType(m.cfg.FileType),
		bulkfile.WithVersion(m.cfg.FormatVersion),
		bulkfile.WithExcludeReadonly(true),
	)
	if err != nil {
		return nil, err
	}
	if err := w.WriteEntities(p.Entities); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to write upload file: %w", err), w.Close())
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	m.logger.Debug().Int("entities", len(p.Entities)).Int("rows", w.Rows()).Msg("upload file written")

	op, sent, err := m.upload(ctx, tmp, p.UploadParameters)
	// The sent file may share its name with the result file.
	_ = m.fs.Remove(tmp)
	_ = m.fs.Remove(sent)
	if err != nil {
		return nil, err
	}
	defer op.Close()

	path, err := m.trackUpload(ctx, op, p.UploadParameters, progress)
	if err != nil {
		return nil, err
	}
	return m.OpenResult(path)
}
