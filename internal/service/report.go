package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

const reportDateLayout = "2006-01-02"

// ReportParameters describes a report job.
type ReportParameters struct {
	ReportName  string
	ReportType  string
	Columns     []string
	Aggregation string
	StartDate   time.Time
	EndDate     time.Time

	ResultDirectory     string
	ResultFileName      string
	OverwriteResultFile bool
}

func (p ReportParameters) validate() error {
	switch {
	case p.ReportType == "":
		return &ValidationError{Field: "report_type", Reason: "is required"}
	case len(p.Columns) == 0:
		return &ValidationError{Field: "columns", Reason: "at least one column is required"}
	case p.StartDate.IsZero() || p.EndDate.IsZero():
		return &ValidationError{Field: "date_range", Reason: "start and end dates are required"}
	case p.EndDate.Before(p.StartDate):
		return &ValidationError{Field: "date_range", Reason: "end date is before start date"}
	}
	return nil
}

// SubmitReport validates p and submits a report job.
func (m *Manager) SubmitReport(ctx context.Context, p ReportParameters) (*operation.Operation, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	name := p.ReportName
	if name == "" {
		name = p.ReportType
	}
	resp, err := m.remote.SubmitReport(ctx, transport.ReportRequest{
		ReportName:  name,
		ReportType:  p.ReportType,
		Columns:     p.Columns,
		Aggregation: p.Aggregation,
		StartDate:   p.StartDate.Format(reportDateLayout),
		EndDate:     p.EndDate.Format(reportDateLayout),
		Format:      string(m.cfg.FileType),
	}, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to submit report: %w", err)
	}
	m.logger.Info().Str("request_id", resp.RequestID).Str("report_type", p.ReportType).Msg("report submitted")
	return m.newOperation(operation.Report, resp.RequestID, resp.TrackingID)
}

// DownloadReport runs a report job to completion and returns the local path
// of the report file.
func (m *Manager) DownloadReport(ctx context.Context, p ReportParameters, progress operation.ProgressFunc) (string, error) {
	op, err := m.SubmitReport(ctx, p)
	if err != nil {
		return "", err
	}
	defer op.Close()
	return m.trackAndDownload(ctx, op, progress, operation.DownloadOptions{
		Directory:  m.resultDirectory(p.ResultDirectory),
		FileName:   p.ResultFileName,
		Decompress: true,
		Overwrite:  p.OverwriteResultFile,
	})
}
