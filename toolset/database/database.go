// Package database provides read-only SQL access for the model: SELECT
// queries, table listing and table description over a SQLite database.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// DefaultMaxRows caps the rows returned by execute_query.
const DefaultMaxRows = 1000

var (
	// ErrNotSelect is returned for statements other than a single SELECT.
	ErrNotSelect = errors.New("only SELECT queries are allowed")
	// ErrDangerousQuery is returned when a query contains a blocked pattern.
	ErrDangerousQuery = errors.New("query contains dangerous pattern")
)

var dangerousPatterns = []string{
	"drop table",
	"drop database",
	"truncate",
	"delete from",
	"alter table",
	"create table",
	"insert into",
	"attach database",
	"pragma",
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures the database tools.
type Options struct {
	MaxRows int
}

// Open opens the SQLite database at path. With readOnly the file must
// already exist and is opened in read-only mode.
func Open(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	return db, nil
}

// CheckQuery enforces the read-only contract on a query string.
func CheckQuery(query string) error {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.TrimSuffix(q, ";")

	if !strings.HasPrefix(q, "select") {
		return fmt.Errorf("%w; for INSERT/UPDATE/DELETE use specific tools", ErrNotSelect)
	}

	if strings.Contains(q, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotSelect)
	}

	normalized := strings.Join(strings.Fields(q), " ")
	for _, p := range dangerousPatterns {
		if strings.Contains(normalized, p) {
			return fmt.Errorf("%w: %s", ErrDangerousQuery, p)
		}
	}

	return nil
}

type dbTools struct {
	db   *sql.DB
	opts Options
}

// Tools returns the database tools bound to db.
func Tools(db *sql.DB, optFns ...func(o *Options)) []tool.Tool {
	opts := Options{MaxRows: DefaultMaxRows}
	for _, fn := range optFns {
		fn(&opts)
	}

	dt := &dbTools{db: db, opts: opts}

	return []tool.Tool{
		tool.NewFunctionTool("execute_query",
			"Execute a SELECT query on the database. Only read-only queries are allowed for safety.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "SQL SELECT query to execute"},
				},
				"required": []string{"query"},
			},
			dt.executeQuery,
		),
		tool.NewFunctionTool("list_tables",
			"List all tables in the database.",
			map[string]any{"type": "object", "properties": map[string]any{}},
			dt.listTables,
		),
		tool.NewFunctionTool("describe_table",
			"Get the schema/structure of a specific table.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table_name": map[string]any{"type": "string", "description": "Name of the table to describe"},
				},
				"required": []string{"table_name"},
			},
			dt.describeTable,
		),
	}
}

func (dt *dbTools) executeQuery(tc *core.ToolContext, args map[string]any) (string, error) {
	query := tool.StringArg(args, "query")

	if err := CheckQuery(query); err != nil {
		return "", tool.GuardrailError("execute_query", err)
	}

	rows, truncated, err := dt.query(tc.Context(), query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}

	if len(rows) == 0 {
		return "Query executed successfully. No results returned.", nil
	}

	out, err := tool.JSONResult(rows)
	if err != nil {
		return "", err
	}

	if truncated {
		out += fmt.Sprintf("\n\n(results limited to %d rows)", dt.opts.MaxRows)
	}

	return out, nil
}

func (dt *dbTools) listTables(tc *core.ToolContext, _ map[string]any) (string, error) {
	rows, _, err := dt.query(tc.Context(),
		`SELECT name AS table_name, type AS table_type FROM sqlite_master
		 WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	if len(rows) == 0 {
		return "No tables found.", nil
	}

	return tool.JSONResult(rows)
}

func (dt *dbTools) describeTable(tc *core.ToolContext, args map[string]any) (string, error) {
	name := tool.StringArg(args, "table_name")
	if !identifier.MatchString(name) {
		return "", tool.GuardrailError("describe_table", fmt.Errorf("invalid table name %q", name))
	}

	rows, _, err := dt.query(tc.Context(),
		`SELECT name AS column_name, type AS data_type,
		        CASE "notnull" WHEN 1 THEN 'NO' ELSE 'YES' END AS is_nullable,
		        dflt_value AS column_default, pk > 0 AS primary_key
		 FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return "", fmt.Errorf("failed to describe table: %w", err)
	}

	if len(rows) == 0 {
		return fmt.Sprintf("Table '%s' not found or has no columns.", name), nil
	}

	return tool.JSONResult(rows)
}

// query runs a statement inside a transaction that is always rolled back.
func (dt *dbTools) query(ctx context.Context, query string, args ...any) ([]map[string]any, bool, error) {
	tx, err := dt.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}

	var (
		out       []map[string]any
		truncated bool
	)

	for rows.Next() {
		if dt.opts.MaxRows > 0 && len(out) >= dt.opts.MaxRows {
			truncated = true
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}

		out = append(out, row)
	}

	return out, truncated, rows.Err()
}
