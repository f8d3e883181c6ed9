package datastore_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mcpwire/mcpwire"
	"github.com/mcpwire/mcpwire/servers/datastore"
)

func openSeeded(t *testing.T) *datastore.Server {
	t.Helper()

	store, err := datastore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open datastore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	stmts := []string{
		`CREATE TABLE fruits (id INTEGER PRIMARY KEY, name TEXT NOT NULL, color TEXT)`,
		`INSERT INTO fruits (name, color) VALUES ('apple', 'red'), ('banana', 'yellow'), ('plum', 'purple')`,
		`CREATE TABLE veggies (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO veggies (name) VALUES ('carrot')`,
	}
	for _, stmt := range stmts {
		if _, err := store.DB().Exec(stmt); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
	return store
}

func TestResources(t *testing.T) {
	store := openSeeded(t)

	resources, err := store.Resources(context.Background())
	if err != nil {
		t.Fatalf("failed to list resources: %v", err)
	}

	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}
	// Listing is ordered by table name.
	if resources[0].URI != "datastore://fruits" {
		t.Errorf("expected datastore://fruits, got %s", resources[0].URI)
	}
	if resources[1].URI != "datastore://veggies" {
		t.Errorf("expected datastore://veggies, got %s", resources[1].URI)
	}
	if resources[0].MimeType != "application/json" {
		t.Errorf("expected application/json, got %s", resources[0].MimeType)
	}
}

func TestReadResource(t *testing.T) {
	store := openSeeded(t)

	result, err := store.ReadResource(context.Background(), mcpwire.ReadResourceParams{
		URI: "datastore://fruits",
	})
	if err != nil {
		t.Fatalf("failed to read resource: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected one contents entry, got %d", len(result.Contents))
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &rows); err != nil {
		t.Fatalf("contents are not a JSON array: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0]["name"] != "apple" {
		t.Errorf("expected first row apple, got %v", rows[0]["name"])
	}
}

func TestReadResourceNotFound(t *testing.T) {
	store := openSeeded(t)

	tests := []string{
		"datastore://missing",
		"other://fruits",
		"fruits",
	}
	for _, uri := range tests {
		_, err := store.ReadResource(context.Background(), mcpwire.ReadResourceParams{URI: uri})
		if !errors.Is(err, mcpwire.ErrNotFound) {
			t.Errorf("ReadResource(%q): expected ErrNotFound, got %v", uri, err)
		}
	}
}

func TestTools(t *testing.T) {
	store := openSeeded(t)

	tools, err := store.Tools(context.Background())
	if err != nil {
		t.Fatalf("failed to list tools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	names := []string{tools[0].Name, tools[1].Name}
	if names[0] != "query" || names[1] != "describe" {
		t.Errorf("unexpected tool names: %v", names)
	}
}

func TestCallToolQuery(t *testing.T) {
	store := openSeeded(t)

	result, err := store.CallTool(context.Background(), mcpwire.CallToolParams{
		Name:      "query",
		Arguments: json.RawMessage(`{"sql": "SELECT name FROM fruits WHERE color = 'red'"}`),
	})
	if err != nil {
		t.Fatalf("failed to call query: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	if !strings.Contains(result.Content[0].Text, "apple") {
		t.Errorf("expected apple in result, got %s", result.Content[0].Text)
	}
}

func TestCallToolQueryRejectsWrites(t *testing.T) {
	store := openSeeded(t)

	result, err := store.CallTool(context.Background(), mcpwire.CallToolParams{
		Name:      "query",
		Arguments: json.RawMessage(`{"sql": "DELETE FROM fruits"}`),
	})
	if err != nil {
		t.Fatalf("expected tool-level error, got protocol error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for a write statement")
	}

	// The table must be untouched.
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM fruits").Scan(&count); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows after rejected delete, got %d", count)
	}
}

func TestCallToolDescribe(t *testing.T) {
	store := openSeeded(t)

	result, err := store.CallTool(context.Background(), mcpwire.CallToolParams{
		Name:      "describe",
		Arguments: json.RawMessage(`{"table": "fruits"}`),
	})
	if err != nil {
		t.Fatalf("failed to call describe: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	for _, col := range []string{"id", "name", "color"} {
		if !strings.Contains(result.Content[0].Text, col) {
			t.Errorf("expected column %s in description, got %s", col, result.Content[0].Text)
		}
	}
}

func TestCallToolDescribeUnknownTable(t *testing.T) {
	store := openSeeded(t)

	_, err := store.CallTool(context.Background(), mcpwire.CallToolParams{
		Name:      "describe",
		Arguments: json.RawMessage(`{"table": "missing"}`),
	})
	if !errors.Is(err, mcpwire.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallToolUnknownName(t *testing.T) {
	store := openSeeded(t)

	_, err := store.CallTool(context.Background(), mcpwire.CallToolParams{
		Name: "drop-everything",
	})
	if !errors.Is(err, mcpwire.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServedOverProtocol(t *testing.T) {
	store := openSeeded(t)

	srv := mcpwire.NewServer(mcpwire.Info{Name: "datastore-test", Version: "1.0"},
		mcpwire.WithResourceProvider(store),
		mcpwire.WithToolProvider(store))

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	clientTransport := mcpwire.NewPipeTransport(clientReader, clientWriter)
	serverTransport := mcpwire.NewPipeTransport(serverReader, serverWriter)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(context.Background(), serverTransport)
	}()

	cli := mcpwire.NewClient(mcpwire.Info{Name: "test-client", Version: "1.0"}, clientTransport)

	ctx := context.Background()
	if err := cli.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	result, err := cli.ListResources(ctx, mcpwire.ListResourcesParams{})
	if err != nil {
		t.Fatalf("failed to list resources: %v", err)
	}
	if len(result.Resources) != 2 {
		t.Errorf("expected 2 resources, got %d", len(result.Resources))
	}

	if err := cli.Shutdown(ctx); err != nil {
		t.Fatalf("failed to shut down: %v", err)
	}
	<-done
}
