package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/pharmadesk/pharmadesk/internal/ops"
)

type ParquetEncodeResult struct {
	Data         []byte
	RecordCount  int64
	MinCreatedAt *time.Time
	MaxCreatedAt *time.Time
}

type parquetAuditEntry struct {
	EntryID         int64  `parquet:"entry_id"`
	Actor           string `parquet:"actor"`
	Action          string `parquet:"action"`
	Entity          string `parquet:"entity"`
	EntityID        string `parquet:"entity_id"`
	DetailsJSON     string `parquet:"details_json"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

func EncodeEntriesToParquet(entries []ops.AuditEntry) (ParquetEncodeResult, error) {
	if len(entries) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetAuditEntry, 0, len(entries))
	var minTime *time.Time
	var maxTime *time.Time

	for _, entry := range entries {
		details := string(entry.Details)
		if details == "" {
			details = "{}"
		}
		rows = append(rows, parquetAuditEntry{
			EntryID:         entry.EntryID,
			Actor:           entry.Actor,
			Action:          entry.Action,
			Entity:          entry.Entity,
			EntityID:        entry.EntityID,
			DetailsJSON:     details,
			CreatedAtUnixMs: entry.CreatedAt.UTC().UnixMilli(),
		})

		createdAt := entry.CreatedAt.UTC()
		if minTime == nil || createdAt.Before(*minTime) {
			copy := createdAt
			minTime = &copy
		}
		if maxTime == nil || createdAt.After(*maxTime) {
			copy := createdAt
			maxTime = &copy
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetAuditEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:         buf.Bytes(),
		RecordCount:  int64(len(rows)),
		MinCreatedAt: minTime,
		MaxCreatedAt: maxTime,
	}, nil
}
