package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/ops"
	"github.com/pharmadesk/pharmadesk/internal/storage"
)

// AuditStore is the slice of the ops repository the archiver needs.
type AuditStore interface {
	ListAuditEntriesBefore(ctx context.Context, cutoff time.Time, limit int) ([]ops.AuditEntry, error)
	CountAuditEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditEntries(ctx context.Context, entryIDs []int64) (int64, error)
	CreateArchiveRun(ctx context.Context, in ops.CreateArchiveRunInput) (ops.ArchiveRun, error)
	CompleteArchiveRun(ctx context.Context, in ops.CompleteArchiveRunInput) (ops.ArchiveRun, error)
}

type Config struct {
	RetainDays int
	BatchSize  int
	RunActor   string
}

type RunSummary struct {
	RunID           string    `json:"run_id"`
	Actor           string    `json:"actor"`
	Cutoff          time.Time `json:"cutoff"`
	EntriesArchived int64     `json:"entries_archived"`
	ObjectsWritten  int       `json:"objects_written"`
	PrunedEntries   int64     `json:"pruned_entries"`
}

// Service exports audit entries past retention to parquet objects and prunes
// them from the store afterwards. Entries are deleted only after their batch
// object is durably written.
type Service struct {
	logger *slog.Logger
	store  AuditStore
	object storage.ObjectStore
	cfg    Config
	now    func() time.Time
}

func NewService(logger *slog.Logger, store AuditStore, object storage.ObjectStore, cfg Config) *Service {
	if cfg.RetainDays <= 0 {
		cfg.RetainDays = 90
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.RunActor == "" {
		cfg.RunActor = "pharmadesk-archiver"
	}
	return &Service{logger: logger, store: store, object: object, cfg: cfg, now: time.Now}
}

func (s *Service) RunOnce(ctx context.Context) (RunSummary, error) {
	started := s.now()
	runID := uuid.NewString()
	cutoff := started.UTC().AddDate(0, 0, -s.cfg.RetainDays)

	if _, err := s.store.CreateArchiveRun(ctx, ops.CreateArchiveRunInput{RunID: runID, Status: "running"}); err != nil {
		return RunSummary{}, fmt.Errorf("create archive run: %w", err)
	}

	summary := RunSummary{RunID: runID, Actor: s.cfg.RunActor, Cutoff: cutoff}
	sequence := 0

	for {
		entries, err := s.store.ListAuditEntriesBefore(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return summary, s.failRun(ctx, runID, summary, started, fmt.Errorf("list archivable entries: %w", err))
		}
		if len(entries) == 0 {
			break
		}

		encoded, err := EncodeEntriesToParquet(entries)
		if err != nil {
			return summary, s.failRun(ctx, runID, summary, started, fmt.Errorf("encode batch: %w", err))
		}

		key, err := storage.BuildArchiveFilePath(runID, entries[0].CreatedAt, sequence)
		if err != nil {
			return summary, s.failRun(ctx, runID, summary, started, fmt.Errorf("build archive path: %w", err))
		}
		if _, err := s.object.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
			ContentType: "application/vnd.apache.parquet",
		}); err != nil {
			return summary, s.failRun(ctx, runID, summary, started, fmt.Errorf("put archive object %q: %w", key, err))
		}

		entryIDs := make([]int64, 0, len(entries))
		for _, entry := range entries {
			entryIDs = append(entryIDs, entry.EntryID)
		}
		pruned, err := s.store.DeleteAuditEntries(ctx, entryIDs)
		if err != nil {
			return summary, s.failRun(ctx, runID, summary, started, fmt.Errorf("prune archived entries: %w", err))
		}

		summary.EntriesArchived += encoded.RecordCount
		summary.ObjectsWritten++
		summary.PrunedEntries += pruned
		sequence++

		s.logger.InfoContext(ctx, "archived audit batch",
			slog.String("run_id", runID),
			slog.String("object_key", key),
			slog.Int64("entries", encoded.RecordCount),
		)
	}

	details, _ := json.Marshal(summary)
	if _, err := s.store.CompleteArchiveRun(ctx, ops.CompleteArchiveRunInput{
		RunID:           runID,
		Status:          "completed",
		EntriesArchived: summary.EntriesArchived,
		ObjectsWritten:  summary.ObjectsWritten,
		Details:         details,
	}); err != nil {
		return summary, fmt.Errorf("complete archive run: %w", err)
	}

	if pending, err := s.store.CountAuditEntriesBefore(ctx, cutoff); err == nil {
		observability.SetPendingAuditRows(pending)
	}
	observability.ObserveArchiveRun("completed", summary.EntriesArchived, s.now().Sub(started))
	return summary, nil
}

func (s *Service) failRun(ctx context.Context, runID string, summary RunSummary, started time.Time, cause error) error {
	details, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if _, err := s.store.CompleteArchiveRun(ctx, ops.CompleteArchiveRunInput{
		RunID:           runID,
		Status:          "failed",
		EntriesArchived: summary.EntriesArchived,
		ObjectsWritten:  summary.ObjectsWritten,
		Details:         details,
	}); err != nil {
		s.logger.ErrorContext(ctx, "mark archive run failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
	observability.ObserveArchiveRun("failed", summary.EntriesArchived, s.now().Sub(started))
	return cause
}
