package client

import (
	"fmt"
	"net/url"
	"time"

	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// Spec is the user-facing configuration for the bulk source plugin.
type Spec struct {
	Endpoint       string   `json:"endpoint"`
	AccessToken    string   `json:"access_token"`
	DeveloperToken string   `json:"developer_token,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	AccountIDs     []string `json:"account_ids"`

	EntityTypes   []string `json:"entity_types,omitempty"`
	CampaignIDs   []int64  `json:"campaign_ids,omitempty"`
	DataScope     []string `json:"data_scope,omitempty"`
	FormatVersion string   `json:"format_version,omitempty"`
	FileType      string   `json:"filetype,omitempty"`
	// Incremental requests only changes since the last successful sync of
	// each account.
	Incremental bool   `json:"incremental,omitempty"`
	TablePrefix string `json:"table_prefix,omitempty"`

	WorkingDirectory string `json:"working_directory,omitempty"`
	PollInterval     string `json:"poll_interval,omitempty"`
	TrackTimeout     string `json:"track_timeout,omitempty"`
	RowsPerRecord    int    `json:"rows_per_record,omitempty"`
	Concurrency      int    `json:"concurrency,omitempty"`
	RetryMax         int    `json:"retry_max,omitempty"`

	// S3 settings for result files served from s3:// URLs.
	S3Region       string `json:"s3_region,omitempty"`
	S3LocalProfile string `json:"s3_local_profile,omitempty"`
	S3Endpoint     string `json:"s3_endpoint,omitempty"`
	S3PathStyle    bool   `json:"s3_path_style,omitempty"`

	// SnapshotDir, when set, receives a Parquet copy of every synced table.
	SnapshotDir string `json:"snapshot_dir,omitempty"`
}

// SetDefaults applies default values for optional fields.
func (s *Spec) SetDefaults() {
	if len(s.EntityTypes) == 0 {
		s.EntityTypes = entity.Types()
	}
	if s.FormatVersion == "" {
		s.FormatVersion = mapping.CurrentVersion.String()
	}
	if s.FileType == "" {
		s.FileType = "csv"
	}
	if s.TablePrefix == "" {
		s.TablePrefix = "bulk"
	}
	if s.PollInterval == "" {
		s.PollInterval = "5s"
	}
	if s.TrackTimeout == "" {
		s.TrackTimeout = "1h"
	}
	if s.RowsPerRecord == 0 {
		s.RowsPerRecord = 500
	}
	if s.Concurrency == 0 {
		s.Concurrency = 4
	}
	if s.RetryMax == 0 {
		s.RetryMax = 3
	}
}

// Validate checks that required fields are set and values are valid.
func (s *Spec) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if u, err := url.Parse(s.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http or https URL: %q", s.Endpoint)
	}
	if s.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if len(s.AccountIDs) == 0 {
		return fmt.Errorf("at least one account id is required")
	}
	seen := make(map[string]bool, len(s.AccountIDs))
	for _, id := range s.AccountIDs {
		if id == "" {
			return fmt.Errorf("account_ids must not contain empty values")
		}
		if seen[id] {
			return fmt.Errorf("duplicate account id %q", id)
		}
		seen[id] = true
	}
	for _, t := range s.EntityTypes {
		if _, ok := entity.Lookup(t); !ok {
			return fmt.Errorf("unsupported entity type %q", t)
		}
	}
	for _, id := range s.CampaignIDs {
		if id <= 0 {
			return fmt.Errorf("campaign id %d must be positive", id)
		}
	}
	if _, err := s.Version(); err != nil {
		return err
	}
	if _, err := bulkfile.ParseFileType(s.FileType); err != nil {
		return err
	}
	if _, err := s.PollIntervalDuration(); err != nil {
		return err
	}
	if _, err := s.TrackTimeoutDuration(); err != nil {
		return err
	}
	if s.RowsPerRecord < 1 {
		return fmt.Errorf("rows_per_record must be at least 1")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if s.RetryMax < 0 {
		return fmt.Errorf("retry_max must not be negative")
	}
	return nil
}

// Version returns the parsed format version.
func (s *Spec) Version() (mapping.Version, error) {
	v, err := mapping.ParseVersion(s.FormatVersion)
	if err != nil {
		return mapping.Version{}, fmt.Errorf("invalid format_version: %w", err)
	}
	if v != mapping.V5 && v != mapping.V6 {
		return mapping.Version{}, fmt.Errorf("unsupported format_version %s; supported: %s, %s", v, mapping.V5, mapping.V6)
	}
	return v, nil
}

// PollIntervalDuration returns the parsed poll interval.
func (s *Spec) PollIntervalDuration() (time.Duration, error) {
	return positiveDuration("poll_interval", s.PollInterval)
}

// TrackTimeoutDuration returns the parsed track timeout.
func (s *Spec) TrackTimeoutDuration() (time.Duration, error) {
	return positiveDuration("track_timeout", s.TrackTimeout)
}

func positiveDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
