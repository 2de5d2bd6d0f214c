package client

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudquery/plugin-sdk/v4/message"
	"github.com/cloudquery/plugin-sdk/v4/plugin"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/rs/zerolog"

	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/service"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

// Client implements the CloudQuery SourceClient interface for bulk downloads.
type Client struct {
	plugin.UnimplementedDestination

	logger   zerolog.Logger
	spec     Spec
	version  mapping.Version
	fileType bulkfile.FileType
	tables   []*EntityTable
	accounts []*account
}

// account is one configured account and the Manager acting on its behalf.
type account struct {
	id      string
	manager *service.Manager
}

// Configure is the NewClientFunc that the plugin SDK calls to create a Client.
func Configure(ctx context.Context, logger zerolog.Logger, specBytes []byte, opts plugin.NewClientOptions) (plugin.Client, error) {
	var spec Spec
	if err := json.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spec: %w", err)
	}
	spec.SetDefaults()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}

	s3Client, err := transport.NewS3Client(ctx, transport.S3Config{
		Region:       spec.S3Region,
		LocalProfile: spec.S3LocalProfile,
		Endpoint:     spec.S3Endpoint,
		PathStyle:    spec.S3PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return New(logger, spec, transport.WithS3(s3Client))
}

// New builds a Client from a validated spec. Transport options apply to the
// client of every account.
func New(logger zerolog.Logger, spec Spec, opts ...transport.Option) (*Client, error) {
	version, err := spec.Version()
	if err != nil {
		return nil, err
	}
	fileType, err := bulkfile.ParseFileType(spec.FileType)
	if err != nil {
		return nil, err
	}
	pollInterval, err := spec.PollIntervalDuration()
	if err != nil {
		return nil, err
	}

	c := &Client{
		logger:   logger,
		spec:     spec,
		version:  version,
		fileType: fileType,
		tables:   buildTables(spec.TablePrefix, spec.EntityTypes, version, spec.Incremental),
	}
	for _, id := range spec.AccountIDs {
		remote, err := transport.New(transport.Config{
			Endpoint: spec.Endpoint,
			Credentials: transport.Credentials{
				AccessToken:    spec.AccessToken,
				DeveloperToken: spec.DeveloperToken,
				CustomerID:     spec.CustomerID,
				AccountID:      id,
			},
			RetryMax: spec.RetryMax,
		}, append([]transport.Option{transport.WithLogger(logger)}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for account %s: %w", id, err)
		}
		var workDir string
		if spec.WorkingDirectory != "" {
			workDir = filepath.Join(spec.WorkingDirectory, id)
		}
		m, err := service.NewManager(remote, service.Config{
			WorkingDirectory: workDir,
			PollInterval:     pollInterval,
			FormatVersion:    version,
			FileType:         fileType,
			Concurrency:      spec.Concurrency,
		}, service.WithLogger(logger.With().Str("account_id", id).Logger()))
		if err != nil {
			return nil, fmt.Errorf("failed to create manager for account %s: %w", id, err)
		}
		c.accounts = append(c.accounts, &account{id: id, manager: m})
	}
	return c, nil
}

// ID returns a unique identifier for this client instance.
func (c *Client) ID() string {
	id := "cq-source-bulk:"
	if c.spec.CustomerID != "" {
		id += c.spec.CustomerID + "/"
	}
	return id + strings.Join(c.spec.AccountIDs, ",")
}

// Tables returns one table per configured entity type.
func (c *Client) Tables(ctx context.Context, options plugin.TableOptions) (schema.Tables, error) {
	filtered, err := c.allTables().FilterDfs(options.Tables, options.SkipTables, options.SkipDependentTables)
	if err != nil {
		return nil, fmt.Errorf("failed to filter tables: %w", err)
	}
	return filtered, nil
}

// Sync downloads every account's entities and streams them to the destination.
func (c *Client) Sync(ctx context.Context, options plugin.SyncOptions, res chan<- message.SyncMessage) error {
	return c.syncTables(ctx, options, res)
}

// Close releases resources held by the client.
func (c *Client) Close(ctx context.Context) error {
	return nil
}

func (c *Client) allTables() schema.Tables {
	out := make(schema.Tables, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.Table
	}
	return out
}
