package tools

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultDatasetRowLimit = 50
const maxDatasetRowLimit = 500

// maxDatasetOutputBytes stops row reading once the rendered TSV is this big.
const maxDatasetOutputBytes = 64 << 10

var datasetNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Datasets is a read-only handle on the SQLite file backing the dataset tools.
type Datasets struct {
	db *sql.DB
}

// OpenDatasets opens path read-only. The file must already exist.
func OpenDatasets(path string) (*Datasets, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("dataset path is required")
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)", escapeFilePath(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open datasets: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open datasets %q: %w", path, err)
	}
	return &Datasets{db: db}, nil
}

// escapeFilePath escapes each path segment so '?', '#' and '%' in directory
// or file names survive the SQLite URI.
func escapeFilePath(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// Close releases the database handle.
func (d *Datasets) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// DatasetSearchTool finds rows in one dataset table that contain text.
type DatasetSearchTool struct {
	Datasets *Datasets
}

// Name returns the tool name.
func (t DatasetSearchTool) Name() string {
	return NameDatasetSearch
}

// Execute matches the query against every column with LIKE and returns TSV rows.
func (t DatasetSearchTool) Execute(ctx context.Context, call Call) (*Result, error) {
	if t.Datasets == nil {
		return nil, errors.New("datasets are not configured")
	}
	args, err := decodeArgs[DatasetSearchArgs](call)
	if err != nil {
		return nil, err
	}
	dataset, err := requireString("dataset", args.Dataset)
	if err != nil {
		return nil, err
	}
	query, err := requireString("query", args.Query)
	if err != nil {
		return nil, err
	}
	if !datasetNamePattern.MatchString(dataset) {
		return nil, fmt.Errorf("invalid dataset name %q", dataset)
	}

	columns, err := t.Datasets.columns(ctx, dataset)
	if err != nil {
		return nil, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultDatasetRowLimit
	}
	limit = min(limit, maxDatasetRowLimit)

	conditions := make([]string, 0, len(columns))
	params := make([]any, 0, len(columns)+1)
	pattern := "%" + escapeLike(query) + "%"
	for _, column := range columns {
		conditions = append(conditions, fmt.Sprintf(`CAST(%q AS TEXT) LIKE ? ESCAPE '\'`, column))
		params = append(params, pattern)
	}
	params = append(params, limit)
	stmt := fmt.Sprintf(`SELECT * FROM %q WHERE %s LIMIT ?`, dataset, strings.Join(conditions, " OR "))

	rows, err := t.Datasets.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("search dataset %s: %w", dataset, err)
	}
	defer rows.Close()
	return renderRows(rows, limit)
}

// DatasetQueryTool runs one read-only SQL statement against the datasets.
type DatasetQueryTool struct {
	Datasets *Datasets
}

// Name returns the tool name.
func (t DatasetQueryTool) Name() string {
	return NameDatasetQuery
}

// Execute runs a single SELECT or WITH statement and returns TSV rows.
func (t DatasetQueryTool) Execute(ctx context.Context, call Call) (*Result, error) {
	if t.Datasets == nil {
		return nil, errors.New("datasets are not configured")
	}
	args, err := decodeArgs[DatasetQueryArgs](call)
	if err != nil {
		return nil, err
	}
	query, err := requireString("query", args.Query)
	if err != nil {
		return nil, err
	}
	query, err = readOnlyStatement(query)
	if err != nil {
		return nil, err
	}

	rows, err := t.Datasets.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()
	return renderRows(rows, maxDatasetRowLimit)
}

func (d *Datasets) columns(ctx context.Context, table string) ([]string, error) {
	var name string
	err := d.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %q not found", table)
	}
	if err != nil {
		return nil, fmt.Errorf("look up dataset %s: %w", table, err)
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT 0`, table))
	if err != nil {
		return nil, fmt.Errorf("read dataset columns: %w", err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read dataset columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset %q has no columns", table)
	}
	return columns, nil
}

// readOnlyStatement trims a trailing semicolon and rejects anything other
// than one SELECT or WITH statement.
func readOnlyStatement(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if strings.Contains(query, ";") {
		return "", errors.New("only a single statement is allowed")
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "", errors.New("query is empty")
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return query, nil
	default:
		return "", fmt.Errorf("only SELECT or WITH statements are allowed, got %s", strings.ToUpper(fields[0]))
	}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// renderRows writes a header line and one tab-separated line per row. It
// stops reading after maxRows rows or maxDatasetOutputBytes of output and
// notes that more rows were left unread.
func renderRows(rows *sql.Rows, maxRows int) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var b strings.Builder
	writer := csv.NewWriter(&b)
	writer.Comma = '\t'
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write tsv row: %w", err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	count := 0
	more := false
	for rows.Next() {
		if count >= maxRows || b.Len() >= maxDatasetOutputBytes {
			more = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make([]string, len(columns))
		for i, value := range values {
			record[i] = sanitizeTSVField(formatValue(value))
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write tsv row: %w", err)
		}
		writer.Flush()
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush tsv rows: %w", err)
	}
	if count == 0 {
		return &Result{Output: "no rows"}, nil
	}
	output := strings.TrimRight(b.String(), "\n")
	if more {
		output += fmt.Sprintf("\n[more rows not shown; first %d returned]", count)
	}
	return &Result{Output: output, Truncated: more}, nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// sanitizeTSVField strips tabs and newlines so fields stay single-line.
func sanitizeTSVField(value string) string {
	replacer := strings.NewReplacer("\t", " ", "\n", " ", "\r", "")
	return strings.TrimSpace(replacer.Replace(value))
}
