package archive

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/pharmadesk/pharmadesk/internal/storage"
)

const archivePrefix = "audit/"

type QueryRequest struct {
	SQL      string
	RowLimit int
}

type QueryResult struct {
	Columns        []string      `json:"columns"`
	Rows           [][]any       `json:"rows"`
	ScannedObjects int           `json:"scanned_objects"`
	ScannedBytes   int64         `json:"scanned_bytes"`
	Duration       time.Duration `json:"duration_ns"`
}

// Engine answers read-only SQL over archived audit parquet objects with an
// embedded duckdb instance. Objects are staged to a temp dir and exposed as
// the audit_archive view.
type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Query(ctx context.Context, request QueryRequest) (QueryResult, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return QueryResult{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return QueryResult{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	objects, err := e.Store.List(ctx, archivePrefix)
	if err != nil {
		return QueryResult{}, fmt.Errorf("list archive objects: %w", err)
	}
	if len(objects) == 0 {
		return QueryResult{}, fmt.Errorf("no archived audit objects found")
	}

	workDir, err := os.MkdirTemp("", "pharmadesk-archive-query-")
	if err != nil {
		return QueryResult{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(objects))
	var scannedBytes int64
	for index, object := range objects {
		if !strings.HasSuffix(object.Key, ".parquet") {
			continue
		}
		reader, err := e.Store.Get(ctx, object.Key)
		if err != nil {
			return QueryResult{}, fmt.Errorf("get object %q: %w", object.Key, err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("archive_%d.parquet", index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return QueryResult{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return QueryResult{}, fmt.Errorf("close object %q: %w", object.Key, err)
		}

		localPaths = append(localPaths, localPath)
		scannedBytes += object.Size
	}
	if len(localPaths) == 0 {
		return QueryResult{}, fmt.Errorf("no archived audit objects found")
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return QueryResult{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW audit_archive AS SELECT * FROM read_parquet(%s)`, quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return QueryResult{}, fmt.Errorf("create audit_archive view: %w", err)
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return QueryResult{}, fmt.Errorf("execute archive query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return QueryResult{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate rows: %w", err)
	}

	return QueryResult{
		Columns:        columns,
		Rows:           resultRows,
		ScannedObjects: len(localPaths),
		ScannedBytes:   scannedBytes,
		Duration:       time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
