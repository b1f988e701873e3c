package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/petasbytes/toolstream/internal/safety"
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 1000
	maxCellRunes    = 2000 // per-cell clamp keeps tool results small for windowing
)

// SQLTools exposes read-only introspection and query tools over one SQLite database.
type SQLTools struct {
	db      *sql.DB
	maxRows int
}

// OpenSQLTools opens path read-only. maxRows caps run_query results; zero
// selects the default.
func OpenSQLTools(path string, maxRows int) (*SQLTools, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("tools: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("tools: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLTools(db, maxRows), nil
}

// NewSQLTools wraps an existing handle. maxRows caps run_query results.
func NewSQLTools(db *sql.DB, maxRows int) *SQLTools {
	if maxRows <= 0 || maxRows > maxRowLimit {
		maxRows = defaultRowLimit
	}
	return &SQLTools{db: db, maxRows: maxRows}
}

// Close releases the database handle.
func (s *SQLTools) Close() error { return s.db.Close() }

type ListSchemasInput struct{}

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema_description:"Schema to list; defaults to main."`
}

type DescribeTableInput struct {
	Schema string `json:"schema,omitempty" jsonschema_description:"Schema holding the table; defaults to main."`
	Table  string `json:"table" jsonschema_description:"Table or view name."`
}

type RunQueryInput struct {
	SQL   string `json:"sql" jsonschema_description:"A single read-only SELECT, WITH, EXPLAIN or VALUES statement."`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum rows to return (default 100)."`
}

// Table is one list_tables entry.
type Table struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Column is one describe_table entry.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key"`
}

// QueryResult is the run_query payload.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Definitions returns the four SQL tool definitions bound to s.
func (s *SQLTools) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "list_schemas",
			Description: "List the schemas (attached databases) available for querying.",
			InputSchema: GenerateSchema[ListSchemasInput](),
			Function:    s.listSchemas,
		},
		{
			Name:        "list_tables",
			Description: "List tables and views in a schema.",
			InputSchema: GenerateSchema[ListTablesInput](),
			Function:    s.listTables,
		},
		{
			Name:        "describe_table",
			Description: "Describe the columns of a table or view: name, declared type, nullability, default and primary key membership.",
			InputSchema: GenerateSchema[DescribeTableInput](),
			Function:    s.describeTable,
		},
		{
			Name: "run_query",
			Description: `Run one read-only SQL statement and return up to limit rows.

Only SELECT, WITH, EXPLAIN and VALUES are accepted. Results are truncated to the row limit; truncated=true signals more rows exist.`,
			InputSchema: GenerateSchema[RunQueryInput](),
			Function:    s.runQuery,
		},
	}
}

func (s *SQLTools) schemaNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_database_list ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLTools) listSchemas(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.schemaNames(ctx)
}

// resolveSchema maps an optional schema name onto a known one.
func (s *SQLTools) resolveSchema(ctx context.Context, schema string) (string, error) {
	if schema == "" {
		return "main", nil
	}
	names, err := s.schemaNames(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if strings.EqualFold(n, schema) {
			return n, nil
		}
	}
	return "", safety.ToolError{Code: "ERR_UNKNOWN_SCHEMA", Message: fmt.Sprintf("schema %q does not exist", schema)}
}

func (s *SQLTools) listTables(ctx context.Context, input json.RawMessage) (any, error) {
	var in ListTablesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	schema, err := s.resolveSchema(ctx, in.Schema)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT name, type FROM %s.sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%%' ORDER BY name`, quoteIdent(schema))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Table{}
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.Type); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLTools) describeTable(ctx context.Context, input json.RawMessage) (any, error) {
	var in DescribeTableInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Table) == "" {
		return nil, safety.ToolError{Code: "ERR_INVALID_INPUT", Message: "table is required"}
	}
	schema, err := s.resolveSchema(ctx, in.Schema)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?, ?) ORDER BY cid`, in.Table, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var (
			c       Column
			notNull int
			def     sql.NullString
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk > 0
		if def.Valid {
			c.Default = &def.String
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, safety.ToolError{Code: "ERR_UNKNOWN_TABLE", Message: fmt.Sprintf("table %q does not exist in schema %q", in.Table, schema)}
	}
	return out, nil
}

func (s *SQLTools) runQuery(ctx context.Context, input json.RawMessage) (any, error) {
	var in RunQueryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	if err := safety.ValidateReadOnlySQL(in.SQL); err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit <= 0 || limit > s.maxRows {
		limit = s.maxRows
	}

	rows, err := s.db.QueryContext(ctx, in.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == limit {
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

// cell normalizes a scanned value for JSON and clamps long text.
func cell(v any) any {
	switch t := v.(type) {
	case []byte:
		return clampRunes(string(t))
	case string:
		return clampRunes(t)
	default:
		return v
	}
}

func clampRunes(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRunes {
		return s
	}
	return string(r[:maxCellRunes]) + "…"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
