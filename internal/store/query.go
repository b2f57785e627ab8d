package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MaxQueryLength = 4000
	MaxQueryJoins  = 4
	DefaultRowCap  = 100
	MaxRowCap      = 1000
)

// ErrUnsafeQuery is returned for any statement the chatbot path refuses to run.
var ErrUnsafeQuery = errors.New("unsafe query")

var (
	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	leadingKeyword = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
	forbidden      = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|REPLACE|DROP|ALTER|CREATE|TRUNCATE|RENAME|GRANT|REVOKE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|ANALYZE|INTO|OUTFILE|DUMPFILE|LOAD_FILE|SLEEP|BENCHMARK|LOCK|UNLOCK|CALL|EXEC|EXECUTE|HANDLER|SET)\b`)
	joinKeyword    = regexp.MustCompile(`(?i)\bJOIN\b`)
	decimalText    = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// ValidateReadOnly accepts a single SELECT (or WITH ... SELECT) statement of
// bounded size. String literals are ignored when looking for keywords.
func ValidateReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))

	switch {
	case q == "":
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	case len(q) > MaxQueryLength:
		return "", fmt.Errorf("%w: statement longer than %d characters", ErrUnsafeQuery, MaxQueryLength)
	}

	bare := stringLiteral.ReplaceAllString(q, "''")
	switch {
	case strings.Contains(bare, ";"):
		return "", fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	case strings.Contains(bare, "--"), strings.Contains(bare, "/*"), strings.Contains(bare, "#"):
		return "", fmt.Errorf("%w: comments are not allowed", ErrUnsafeQuery)
	case !leadingKeyword.MatchString(bare):
		return "", fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeQuery)
	}
	if kw := forbidden.FindString(bare); kw != "" {
		return "", fmt.Errorf("%w: keyword %s is not allowed", ErrUnsafeQuery, strings.ToUpper(kw))
	}
	if n := len(joinKeyword.FindAllString(bare, -1)); n > MaxQueryJoins {
		return "", fmt.Errorf("%w: %d joins exceed the limit of %d", ErrUnsafeQuery, n, MaxQueryJoins)
	}
	return q, nil
}

// QueryResult is a tabular result with JSON-friendly cell values.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Query runs a validated SELECT inside a read-only transaction and returns
// at most maxRows rows.
func (s *Store) Query(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	q, err := ValidateReadOnly(query)
	if err != nil {
		return nil, err
	}
	if maxRows <= 0 {
		maxRows = DefaultRowCap
	}
	if maxRows > MaxRowCap {
		maxRows = MaxRowCap
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// One extra row tells us whether the result was cut.
	wrapped := `SELECT * FROM (` + q + `) AS q LIMIT ` + strconv.Itoa(maxRows+1)
	rows, err := tx.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = cell(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// cell converts driver values into something encoding/json renders sensibly.
func cell(v any) any {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if decimalText.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return x
	}
}
