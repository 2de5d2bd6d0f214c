package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudquery/plugin-sdk/v4/message"
	"github.com/cloudquery/plugin-sdk/v4/plugin"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/cloudquery/plugin-sdk/v4/state"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/service"
	"github.com/infobloxopen/cq-source-bulk/internal/snapshot"
)

// accountJob is the download job synced for one account.
type accountJob struct {
	account   *account
	op        *operation.Operation
	startedAt time.Time
}

// syncTables performs the full sync pipeline: emit migrations, submit or
// resume one download job per account, wait for them, then stream the
// downloaded entities.
func (c *Client) syncTables(ctx context.Context, options plugin.SyncOptions, res chan<- message.SyncMessage) error {
	stateClient, err := state.NewConnectedClient(ctx, options.BackendOptions)
	if err != nil {
		return fmt.Errorf("failed to initialize state backend: %w", err)
	}
	defer func() {
		if err := stateClient.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close state client")
		}
	}()

	filtered, err := c.allTables().FilterDfs(options.Tables, options.SkipTables, options.SkipDependentTables)
	if err != nil {
		return fmt.Errorf("failed to filter tables: %w", err)
	}
	for _, table := range filtered {
		res <- &message.SyncMigrateTable{Table: table}
	}
	return c.sync(ctx, stateClient, filtered, res)
}

func (c *Client) sync(ctx context.Context, sc stateStore, tables schema.Tables, res chan<- message.SyncMessage) error {
	names := make(map[string]bool, len(tables))
	for _, t := range tables {
		names[t.Name] = true
	}
	var selected []*EntityTable
	var entityTypes []string
	for _, t := range c.tables {
		if names[t.Table.Name] {
			selected = append(selected, t)
			entityTypes = append(entityTypes, t.RecordType)
		}
	}
	if len(selected) == 0 {
		c.logger.Info().Msg("no tables selected, nothing to sync")
		return nil
	}

	c.logger.Info().
		Int("tables", len(selected)).
		Int("accounts", len(c.accounts)).
		Msg("starting sync")

	jobs := make([]*accountJob, 0, len(c.accounts))
	for _, a := range c.accounts {
		job, err := c.startJob(ctx, sc, a, entityTypes)
		if err != nil {
			return fmt.Errorf("failed to start download for account %s: %w", a.id, err)
		}
		jobs = append(jobs, job)
	}
	if err := sc.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to flush state backend")
	}

	if err := c.trackJobs(ctx, sc, jobs); err != nil {
		return err
	}

	var store *snapshot.Store
	if c.spec.SnapshotDir != "" {
		store = snapshot.New(c.spec.SnapshotDir, nil)
		defer func() {
			if err := store.Close(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to close snapshot store")
			}
		}()
	}

	if err := c.syncAccounts(ctx, jobs, tablesByType(selected), store, res); err != nil {
		return err
	}

	for _, job := range jobs {
		if err := SetLastSync(ctx, sc, job.account.id, job.startedAt); err != nil {
			c.logger.Warn().Err(err).Str("account_id", job.account.id).Msg("failed to set last sync time")
		}
		if err := ClearPendingJob(ctx, sc, job.account.id); err != nil {
			c.logger.Warn().Err(err).Str("account_id", job.account.id).Msg("failed to clear pending job")
		}
	}
	if err := sc.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to flush state backend")
	}

	c.logger.Info().Msg("sync complete")
	return nil
}

// startJob resumes the account's pending download job, or submits a new one
// and records it as pending.
func (c *Client) startJob(ctx context.Context, sc stateStore, a *account, entityTypes []string) (*accountJob, error) {
	pending, err := GetPendingJob(ctx, sc, a.id)
	if err != nil {
		c.logger.Warn().Err(err).Str("account_id", a.id).Msg("failed to read pending job, submitting a new one")
	}
	if pending != nil {
		op, err := a.manager.Resume(operation.Download, pending.RequestID, pending.TrackingID)
		if err != nil {
			return nil, err
		}
		c.logger.Info().
			Str("account_id", a.id).
			Str("request_id", pending.RequestID).
			Msg("resuming pending download")
		return &accountJob{account: a, op: op, startedAt: pending.SubmittedAt}, nil
	}

	params := service.DownloadParameters{
		CampaignIDs: c.spec.CampaignIDs,
		EntityTypes: entityTypes,
		DataScope:   c.spec.DataScope,
	}
	if c.spec.Incremental {
		last, err := GetLastSync(ctx, sc, a.id)
		if err != nil {
			c.logger.Warn().Err(err).Str("account_id", a.id).Msg("failed to read last sync time, performing full sync")
		}
		if !last.IsZero() {
			params.LastSyncTime = &last
		}
	}

	startedAt := time.Now().UTC()
	op, err := a.manager.SubmitDownload(ctx, params)
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("account_id", a.id).
		Str("request_id", op.RequestID()).
		Bool("incremental", params.LastSyncTime != nil).
		Msg("download submitted")

	if err := SetPendingJob(ctx, sc, a.id, PendingJob{
		RequestID:   op.RequestID(),
		TrackingID:  op.TrackingID(),
		SubmittedAt: startedAt,
	}); err != nil {
		c.logger.Warn().Err(err).Str("account_id", a.id).Msg("failed to record pending job")
	}
	return &accountJob{account: a, op: op, startedAt: startedAt}, nil
}

// trackJobs waits for every job to finish. A job the service failed is
// forgotten so the next sync submits a new one; a job still running when the
// track timeout expires stays pending.
func (c *Client) trackJobs(ctx context.Context, sc stateStore, jobs []*accountJob) error {
	timeout, err := c.spec.TrackTimeoutDuration()
	if err != nil {
		return err
	}
	trackCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ops := make([]*operation.Operation, len(jobs))
	for i, job := range jobs {
		ops[i] = job.op
	}
	_, err = jobs[0].account.manager.TrackAll(trackCtx, ops, func(op *operation.Operation, s operation.Status) {
		c.logger.Debug().
			Str("request_id", op.RequestID()).
			Str("status", string(s.State)).
			Int("percent_complete", s.PercentComplete).
			Msg("download progress")
	})
	if err == nil {
		return nil
	}

	var failed *operation.FailedError
	if errors.As(err, &failed) {
		for _, job := range jobs {
			if job.op.RequestID() != failed.RequestID {
				continue
			}
			if err := ClearPendingJob(ctx, sc, job.account.id); err != nil {
				c.logger.Warn().Err(err).Str("account_id", job.account.id).Msg("failed to clear pending job")
			}
		}
		if err := sc.Flush(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to flush state backend")
		}
	}
	return fmt.Errorf("failed to track downloads: %w", err)
}

// syncAccounts streams the result of every job with concurrency control.
func (c *Client) syncAccounts(ctx context.Context, jobs []*accountJob, tables map[string]*EntityTable, store *snapshot.Store, res chan<- message.SyncMessage) error {
	concurrency := c.spec.Concurrency

	if concurrency == 1 {
		for _, job := range jobs {
			if err := c.syncAccount(ctx, job, tables, store, res); err != nil {
				return err
			}
		}
		return nil
	}

	var sem chan struct{}
	if concurrency > 0 {
		sem = make(chan struct{}, concurrency)
	}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		mu.Lock()
		hasErr := firstErr != nil
		mu.Unlock()
		if hasErr {
			break
		}

		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		wg.Add(1)
		go func(j *accountJob) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			if err := c.syncAccount(ctx, j, tables, store, res); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(job)
	}

	wg.Wait()
	return firstErr
}

// syncAccount downloads the result of one job and emits its entities as
// SyncInsert messages, batching runs of same-typed entities.
func (c *Client) syncAccount(ctx context.Context, job *accountJob, tables map[string]*EntityTable, store *snapshot.Store, res chan<- message.SyncMessage) error {
	m := job.account.manager
	path, err := job.op.DownloadResultFile(ctx, operation.DownloadOptions{
		Directory:  m.Config().WorkingDirectory,
		FileName:   job.op.RequestID() + c.fileType.Extension(),
		Decompress: true,
		Overwrite:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to download result of %s: %w", job.op.RequestID(), err)
	}
	r, err := m.OpenResult(path)
	if err != nil {
		return fmt.Errorf("failed to open result of %s: %w", job.op.RequestID(), err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("failed to close result file")
		}
	}()

	builders := make(map[string]*recordBuilder)
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()
	emit := func(b *recordBuilder) error {
		rec := b.NewRecord()
		if store != nil {
			if err := store.Write(b.table.Table.Name, rec); err != nil {
				return fmt.Errorf("failed to write snapshot of %s: %w", b.table.Table.Name, err)
			}
		}
		select {
		case res <- &message.SyncInsert{Record: rec}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var entities, flagged int
	for r.Next() {
		e := r.Entity()
		t, ok := tables[e.RecordType()]
		if !ok {
			continue
		}
		b, ok := builders[t.RecordType]
		if !ok {
			b = newRecordBuilder(t, c.version)
			builders[t.RecordType] = b
		}

		sameType := func(next entity.Entity) bool { return next.RecordType() == t.RecordType }
		for e != nil {
			if ec, ok := e.(entity.ErrorCarrier); ok && ec.HasError() {
				flagged++
			}
			if err := b.Append(job.account.id, job.op.RequestID(), e); err != nil {
				return err
			}
			entities++
			if b.Len() >= c.spec.RowsPerRecord {
				if err := emit(b); err != nil {
					return err
				}
			}
			if e, _, err = r.TryRead(sameType); err != nil {
				return fmt.Errorf("failed to read result of %s: %w", job.op.RequestID(), err)
			}
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read result of %s: %w", job.op.RequestID(), err)
	}

	for _, t := range c.tables {
		if b, ok := builders[t.RecordType]; ok && b.Len() > 0 {
			if err := emit(b); err != nil {
				return err
			}
		}
	}

	ev := c.logger.Info().
		Str("account_id", job.account.id).
		Str("request_id", job.op.RequestID()).
		Int("entities", entities).
		Int("skipped_rows", r.Skipped())
	if flagged > 0 {
		ev = ev.Int("entities_with_errors", flagged)
	}
	ev.Msg("account synced")
	return nil
}
