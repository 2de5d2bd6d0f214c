package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudquery/plugin-sdk/v4/message"
	"github.com/cloudquery/plugin-sdk/v4/plugin"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/rs/zerolog"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/service"
	"github.com/infobloxopen/cq-source-bulk/internal/testutil"
)

func testSpec(t *testing.T, svc *testutil.BulkService, accounts ...string) Spec {
	t.Helper()
	spec := Spec{
		Endpoint:         svc.URL(),
		AccessToken:      testutil.TestAccessToken,
		AccountIDs:       accounts,
		EntityTypes:      []string{entity.TypeCampaign, entity.TypeAgeTarget},
		WorkingDirectory: t.TempDir(),
		PollInterval:     "1ms",
	}
	spec.SetDefaults()
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return spec
}

func newTestClient(t *testing.T, spec Spec) *Client {
	t.Helper()
	c, err := New(zerolog.Nop(), spec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func downloadPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := testutil.ZipBulkFile("result.csv",
		&entity.Campaign{Identity: entity.Identity{ID: ptr(int64(1)), ParentID: 42, Status: "Active"}, Name: "Summer"},
		&entity.Campaign{Identity: entity.Identity{ID: ptr(int64(2)), ParentID: 42, Status: "Paused"}, Name: "Winter"},
		&entity.Campaign{Identity: entity.Identity{ID: ptr(int64(3)), ParentID: 42, Status: "Active"}, Name: "Spring"},
		&entity.AgeTarget{TargetHeader: entity.TargetHeader{ParentID: 7}, Bids: []entity.AgeTargetBid{{Age: "EighteenToTwentyFour"}, {Age: "SixtyFiveAndAbove"}}},
		&entity.Keyword{Identity: entity.Identity{ID: ptr(int64(9)), ParentID: 7}, Text: "shoes"},
	)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

// collect runs fn with a result channel and returns every message sent.
func collect(t *testing.T, fn func(res chan<- message.SyncMessage) error) ([]message.SyncMessage, error) {
	t.Helper()
	res := make(chan message.SyncMessage)
	var msgs []message.SyncMessage
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for m := range res {
			msgs = append(msgs, m)
		}
	}()
	err := fn(res)
	close(res)
	wg.Wait()
	return msgs, err
}

// insertedRows returns the values of column across every insert into table.
func insertedRows(t *testing.T, msgs []message.SyncMessage, table, column string) []string {
	t.Helper()
	var out []string
	for _, m := range msgs {
		ins, ok := m.(*message.SyncInsert)
		if !ok {
			continue
		}
		name, _ := ins.Record.Schema().Metadata().GetValue(schema.MetadataTableName)
		if name != table {
			continue
		}
		vs, err := testutil.RecordStrings(ins.Record, column)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, vs...)
	}
	return out
}

func TestSync_Full(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.DownloadPayload = downloadPayload(t)

	spec := testSpec(t, svc, "42", "43")
	spec.RowsPerRecord = 2
	c := newTestClient(t, spec)
	sc := newMemState()

	msgs, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), sc, c.allTables(), res)
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	var inserts int
	for _, m := range msgs {
		if _, ok := m.(*message.SyncInsert); ok {
			inserts++
		}
	}
	// Per account: two campaign batches and one age target batch.
	if inserts != 6 {
		t.Errorf("inserts = %d, want 6", inserts)
	}

	names := insertedRows(t, msgs, "bulk_campaign", "campaign")
	if len(names) != 6 {
		t.Fatalf("campaign rows = %v, want 6", names)
	}
	accounts := insertedRows(t, msgs, "bulk_campaign", ColumnAccountID)
	counts := map[string]int{}
	for _, a := range accounts {
		counts[a]++
	}
	if counts["42"] != 3 || counts["43"] != 3 {
		t.Errorf("campaign rows per account = %v", counts)
	}
	if targets := insertedRows(t, msgs, "bulk_ad_group_age_target", "target"); len(targets) != 4 {
		t.Errorf("age target rows = %v, want 4", targets)
	}

	if reqs := svc.DownloadRequests(); len(reqs) != 2 {
		t.Fatalf("download requests = %d, want 2", len(reqs))
	} else if reqs[0].LastSyncTime != nil {
		t.Error("full sync should not send a last sync time")
	}

	for _, id := range []string{"42", "43"} {
		if last, _ := GetLastSync(context.Background(), sc, id); last.IsZero() {
			t.Errorf("account %s: last sync time not recorded", id)
		}
		if job, _ := GetPendingJob(context.Background(), sc, id); job != nil {
			t.Errorf("account %s: pending job not cleared: %+v", id, job)
		}
		entries, err := os.ReadDir(filepath.Join(spec.WorkingDirectory, id))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("account %s: working directory not empty: %v", id, entries)
		}
	}
}

func TestSync_Incremental(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.DownloadPayload = downloadPayload(t)

	spec := testSpec(t, svc, "42")
	spec.Incremental = true
	c := newTestClient(t, spec)
	sc := newMemState()
	last := time.Now().Add(-time.Hour).UTC()
	if err := SetLastSync(context.Background(), sc, "42", last); err != nil {
		t.Fatal(err)
	}

	if _, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), sc, c.allTables(), res)
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	reqs := svc.DownloadRequests()
	if len(reqs) != 1 || reqs[0].LastSyncTime == nil {
		t.Fatalf("download requests = %+v, want one with a last sync time", reqs)
	}
	if !reqs[0].LastSyncTime.Equal(last) {
		t.Errorf("last sync time = %v, want %v", reqs[0].LastSyncTime, last)
	}
	if got, _ := GetLastSync(context.Background(), sc, "42"); !got.After(last) {
		t.Errorf("last sync time not advanced: %v", got)
	}
}

func TestSync_ResumesPendingJob(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.DownloadPayload = downloadPayload(t)

	spec := testSpec(t, svc, "42")
	c := newTestClient(t, spec)
	op, err := c.accounts[0].manager.SubmitDownload(context.Background(), service.DownloadParameters{
		EntityTypes: []string{entity.TypeCampaign},
	})
	if err != nil {
		t.Fatalf("SubmitDownload: %v", err)
	}
	sc := newMemState()
	submitted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := SetPendingJob(context.Background(), sc, "42", PendingJob{RequestID: op.RequestID(), SubmittedAt: submitted}); err != nil {
		t.Fatal(err)
	}

	msgs, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), sc, c.allTables(), res)
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n := len(svc.DownloadRequests()); n != 1 {
		t.Errorf("download requests = %d, want 1", n)
	}
	if got := insertedRows(t, msgs, "bulk_campaign", ColumnRequestID); len(got) != 3 || got[0] != op.RequestID() {
		t.Errorf("request ids = %v, want %s", got, op.RequestID())
	}
	if got, _ := GetLastSync(context.Background(), sc, "42"); !got.Equal(submitted) {
		t.Errorf("last sync time = %v, want %v", got, submitted)
	}
}

func TestSync_FailedJob(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.Statuses = []operation.Status{
		{State: operation.InProgress},
		{State: operation.Failed, Errors: []operation.RemoteError{{Code: 3220, ErrorCode: "InternalError", Message: "try again"}}},
	}

	spec := testSpec(t, svc, "42")
	c := newTestClient(t, spec)
	sc := newMemState()

	msgs, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), sc, c.allTables(), res)
	})
	if err == nil || !strings.Contains(err.Error(), "Failed") {
		t.Fatalf("sync error = %v, want a failed job", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages = %d, want 0", len(msgs))
	}
	if job, _ := GetPendingJob(context.Background(), sc, "42"); job != nil {
		t.Errorf("failed job should not stay pending: %+v", job)
	}
	if last, _ := GetLastSync(context.Background(), sc, "42"); !last.IsZero() {
		t.Errorf("last sync time = %v, want zero", last)
	}
}

func TestSync_TrackTimeoutKeepsPendingJob(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.Statuses = []operation.Status{{State: operation.InProgress}}

	spec := testSpec(t, svc, "42")
	spec.TrackTimeout = "50ms"
	c := newTestClient(t, spec)
	sc := newMemState()

	if _, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), sc, c.allTables(), res)
	}); err == nil {
		t.Fatal("expected timeout error")
	}
	job, _ := GetPendingJob(context.Background(), sc, "42")
	if job == nil || job.RequestID == "" {
		t.Fatal("job should stay pending after a timeout")
	}
}

func TestSync_Snapshot(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.DownloadPayload = downloadPayload(t)

	spec := testSpec(t, svc, "42")
	spec.SnapshotDir = t.TempDir()
	c := newTestClient(t, spec)

	if _, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(context.Background(), newMemState(), c.allTables(), res)
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	names, err := testutil.ParquetColumn(context.Background(), filepath.Join(spec.SnapshotDir, "bulk_campaign.parquet"), "campaign")
	if err != nil {
		t.Fatalf("ParquetColumn: %v", err)
	}
	want := []string{"Summer", "Winter", "Spring"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("snapshot campaigns = %v, want %v", names, want)
	}
}

func TestSyncTables_Filter(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()
	svc.DownloadPayload = downloadPayload(t)

	c := newTestClient(t, testSpec(t, svc, "42"))
	msgs, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.Sync(context.Background(), plugin.SyncOptions{Tables: []string{"bulk_campaign"}}, res)
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var migrated []string
	for _, m := range msgs {
		if mt, ok := m.(*message.SyncMigrateTable); ok {
			migrated = append(migrated, mt.Table.Name)
		}
	}
	if len(migrated) != 1 || migrated[0] != "bulk_campaign" {
		t.Errorf("migrated = %v, want [bulk_campaign]", migrated)
	}
	reqs := svc.DownloadRequests()
	if len(reqs) != 1 || len(reqs[0].EntityTypes) != 1 || reqs[0].EntityTypes[0] != entity.TypeCampaign {
		t.Errorf("download requests = %+v, want only campaigns", reqs)
	}
	if got := insertedRows(t, msgs, "bulk_ad_group_age_target", "target"); len(got) != 0 {
		t.Errorf("unselected table synced: %v", got)
	}
}

func TestContextCancellation(t *testing.T) {
	svc := testutil.NewBulkService()
	defer svc.Close()

	c := newTestClient(t, testSpec(t, svc, "42"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := collect(t, func(res chan<- message.SyncMessage) error {
		return c.sync(ctx, newMemState(), c.allTables(), res)
	}); err == nil {
		t.Error("expected error from a cancelled context")
	}
}
