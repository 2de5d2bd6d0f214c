package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/infobloxopen/cq-source-bulk/internal/operation"
)

// Scope of a download request.
const (
	ScopeAccount   = "Account"
	ScopeCampaigns = "Campaigns"
)

// DownloadRequest asks the service to build a bulk file of account entities.
type DownloadRequest struct {
	Scope         string     `json:"scope"`
	CampaignIDs   []int64    `json:"campaignIds,omitempty"`
	EntityTypes   []string   `json:"entityTypes"`
	DataScope     []string   `json:"dataScope,omitempty"`
	FormatVersion string     `json:"formatVersion"`
	FileType      string     `json:"fileType"`
	LastSyncTime  *time.Time `json:"lastSyncTimeInUtc,omitempty"`
	Compression   string     `json:"compressionType,omitempty"`
}

// UploadRequest asks the service for an upload URL.
type UploadRequest struct {
	// ResponseMode is "ErrorsOnly" or "ErrorsAndResults".
	ResponseMode string `json:"responseMode"`
}

// ReportRequest asks the service to build a report file.
type ReportRequest struct {
	ReportName  string   `json:"reportName"`
	ReportType  string   `json:"reportType"`
	Columns     []string `json:"columns"`
	Aggregation string   `json:"aggregation,omitempty"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Format      string   `json:"format"`
}

// SubmitResponse identifies a submitted job.
type SubmitResponse struct {
	RequestID  string `json:"requestId"`
	TrackingID string `json:"trackingId"`
	UploadURL  string `json:"uploadUrl,omitempty"`
}

// SubmitDownload submits a bulk download job.
func (c *Client) SubmitDownload(ctx context.Context, req DownloadRequest, trackingID string) (*SubmitResponse, error) {
	return c.submit(ctx, "/bulk/v1/downloads", trackingID, req)
}

// SubmitUpload requests an upload URL; the job starts when a file is uploaded to it.
func (c *Client) SubmitUpload(ctx context.Context, req UploadRequest, trackingID string) (*SubmitResponse, error) {
	resp, err := c.submit(ctx, "/bulk/v1/uploads", trackingID, req)
	if err != nil {
		return nil, err
	}
	if resp.UploadURL == "" {
		return nil, fmt.Errorf("upload request %s returned no upload url", resp.RequestID)
	}
	return resp, nil
}

// SubmitReport submits a report job.
func (c *Client) SubmitReport(ctx context.Context, req ReportRequest, trackingID string) (*SubmitResponse, error) {
	return c.submit(ctx, "/reporting/v1/reports", trackingID, req)
}

func (c *Client) submit(ctx context.Context, p, trackingID string, body any) (*SubmitResponse, error) {
	var out SubmitResponse
	echoed, err := c.doJSON(sendOnce(ctx), http.MethodPost, p, trackingID, body, &out)
	if err != nil {
		return nil, err
	}
	if out.RequestID == "" {
		return nil, fmt.Errorf("%s returned no request id", p)
	}
	if out.TrackingID == "" {
		out.TrackingID = echoed
	}
	c.logger.Debug().Str("path", p).Str("request_id", out.RequestID).Str("tracking_id", out.TrackingID).Msg("submitted job")
	return &out, nil
}

// StatusPath returns the status resource path of a job.
func StatusPath(kind operation.Kind, requestID string) (string, error) {
	var base string
	switch kind {
	case operation.Download:
		base = "/bulk/v1/downloads/"
	case operation.Upload:
		base = "/bulk/v1/uploads/"
	case operation.Report:
		base = "/reporting/v1/reports/"
	default:
		return "", fmt.Errorf("unknown operation kind %q", kind)
	}
	return base + url.PathEscape(requestID) + "/status", nil
}

// GetStatus fetches the status of a job once.
func (c *Client) GetStatus(ctx context.Context, kind operation.Kind, requestID, trackingID string) (*operation.Status, error) {
	p, err := StatusPath(kind, requestID)
	if err != nil {
		return nil, err
	}
	var s operation.Status
	if _, err := c.doJSON(ctx, http.MethodGet, p, trackingID, nil, &s); err != nil {
		return nil, err
	}
	if s.State == "" {
		return nil, fmt.Errorf("status of %s has no state", requestID)
	}
	if s.RequestID == "" {
		s.RequestID = requestID
	}
	return &s, nil
}

var _ operation.Client = (*Client)(nil)
