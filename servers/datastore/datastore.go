// Package datastore exposes the tables of a SQLite database as protocol resources
// and query tools. Each table becomes a resource at datastore://<table> whose
// contents are the table rows rendered as JSON, and two tools allow ad-hoc
// inspection: "query" runs read-only SQL and "describe" reports a table's schema.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mcpwire/mcpwire"
)

const uriScheme = "datastore://"

// maxRows caps how many rows a read or query returns, keeping a single response to
// one frame of reasonable size.
const maxRows = 1000

// Option represents the options for a datastore Server.
type Option func(*Server)

// Server serves one SQLite database. It implements mcpwire.ResourceProvider and
// mcpwire.ToolProvider.
type Server struct {
	db     *sql.DB
	logger *slog.Logger
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "datastore"))
	}
}

// Open opens the SQLite database at path. Use ":memory:" for an ephemeral store.
func Open(path string, options ...Option) (*Server, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to :memory: would get its own empty database, so
	// the pool is pinned to a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Server{
		db:     db,
		logger: slog.Default().With(slog.String("component", "datastore")),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying database handle, for seeding in tests and embedders.
func (s *Server) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Server) Close() error {
	return s.db.Close()
}

// Resources lists one resource per user table in the database.
func (s *Server) Resources(ctx context.Context) ([]mcpwire.Resource, error) {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	resources := make([]mcpwire.Resource, 0, len(tables))
	for _, table := range tables {
		resources = append(resources, mcpwire.Resource{
			URI:         uriScheme + table,
			Name:        table,
			Description: fmt.Sprintf("Rows of table %s", table),
			MimeType:    "application/json",
		})
	}
	return resources, nil
}

// ReadResource returns the rows of the table addressed by a datastore:// URI as a
// JSON array of objects.
func (s *Server) ReadResource(ctx context.Context, params mcpwire.ReadResourceParams) (mcpwire.ReadResourceResult, error) {
	table, ok := strings.CutPrefix(params.URI, uriScheme)
	if !ok {
		return mcpwire.ReadResourceResult{}, fmt.Errorf("%w: %s", mcpwire.ErrNotFound, params.URI)
	}
	if err := s.requireTable(ctx, table); err != nil {
		return mcpwire.ReadResourceResult{}, err
	}

	text, err := s.queryJSON(ctx, fmt.Sprintf(`SELECT * FROM %q`, table))
	if err != nil {
		return mcpwire.ReadResourceResult{}, err
	}
	return mcpwire.ReadResourceResult{
		Contents: []mcpwire.ResourceContents{
			{
				URI:      params.URI,
				MimeType: "application/json",
				Text:     text,
			},
		},
	}, nil
}

// Tools lists the query and describe tools.
func (s *Server) Tools(ctx context.Context) ([]mcpwire.Tool, error) {
	return []mcpwire.Tool{
		{
			Name:        "query",
			Description: "Run a read-only SQL query against the datastore",
			InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "sql": { "type": "string", "description": "A single SELECT statement" }
  },
  "required": ["sql"]
}`),
		},
		{
			Name:        "describe",
			Description: "Describe the columns of a table",
			InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "table": { "type": "string", "description": "Name of the table to describe" }
  },
  "required": ["table"]
}`),
		},
	}, nil
}

// CallTool dispatches to the query or describe tool. Query failures are reported as
// tool errors in the result, not protocol errors.
func (s *Server) CallTool(ctx context.Context, params mcpwire.CallToolParams) (mcpwire.CallToolResult, error) {
	switch params.Name {
	case "query":
		return s.callQuery(ctx, params.Arguments)
	case "describe":
		return s.callDescribe(ctx, params.Arguments)
	default:
		return mcpwire.CallToolResult{}, fmt.Errorf("%w: tool %s", mcpwire.ErrNotFound, params.Name)
	}
}

func (s *Server) callQuery(ctx context.Context, arguments json.RawMessage) (mcpwire.CallToolResult, error) {
	var args struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return mcpwire.CallToolResult{}, fmt.Errorf("invalid query arguments: %w", err)
	}

	query := strings.TrimSpace(args.SQL)
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return toolError("only SELECT statements are allowed"), nil
	}

	text, err := s.queryJSON(ctx, query)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return toolText(text), nil
}

func (s *Server) callDescribe(ctx context.Context, arguments json.RawMessage) (mcpwire.CallToolResult, error) {
	var args struct {
		Table string `json:"table"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return mcpwire.CallToolResult{}, fmt.Errorf("invalid describe arguments: %w", err)
	}
	if err := s.requireTable(ctx, args.Table); err != nil {
		return mcpwire.CallToolResult{}, err
	}

	text, err := s.queryJSON(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, args.Table))
	if err != nil {
		return toolError(err.Error()), nil
	}
	return toolText(text), nil
}

func (s *Server) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// requireTable confirms the table exists before its name is spliced into SQL text.
func (s *Server) requireTable(ctx context.Context, table string) error {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: table %s", mcpwire.ErrNotFound, table)
}

// queryJSON runs a query and renders the rows as a JSON array of column-keyed
// objects, capped at maxRows.
func (s *Server) queryJSON(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		if len(out) >= maxRows {
			s.logger.Warn("row cap reached, truncating result", slog.Int("maxRows", maxRows))
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			// The driver hands back []byte for text in some cases.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	bs, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func toolText(text string) mcpwire.CallToolResult {
	return mcpwire.CallToolResult{
		Content: []mcpwire.Content{
			{Type: mcpwire.ContentTypeText, Text: text},
		},
	}
}

func toolError(message string) mcpwire.CallToolResult {
	return mcpwire.CallToolResult{
		Content: []mcpwire.Content{
			{Type: mcpwire.ContentTypeText, Text: message},
		},
		IsError: true,
	}
}
