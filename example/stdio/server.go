package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mcpwire/mcpwire"
	"github.com/mcpwire/mcpwire/servers/datastore"
)

// runServer serves an in-memory datastore over the process's standard streams.
// Logging goes to stderr; stdout carries only protocol frames.
func runServer(ctx context.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := datastore.Open(":memory:", datastore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seed(store); err != nil {
		return err
	}

	srv := mcpwire.NewServer(mcpwire.Info{
		Name:    "example-datastore",
		Version: "1.0",
	},
		mcpwire.WithResourceProvider(store),
		mcpwire.WithToolProvider(store),
		mcpwire.WithServerLogger(logger),
	)

	return srv.ServeStdio(ctx)
}

func seed(store *datastore.Server) error {
	stmts := []string{
		`CREATE TABLE albums (id INTEGER PRIMARY KEY, name TEXT NOT NULL, year INTEGER NOT NULL)`,
		`INSERT INTO albums (name, year) VALUES
			('Kind of Blue', 1959),
			('Head Hunters', 1973),
			('The Koln Concert', 1975)`,
		`CREATE TABLE artists (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO artists (name) VALUES ('Miles Davis'), ('Herbie Hancock'), ('Keith Jarrett')`,
	}
	for _, stmt := range stmts {
		if _, err := store.DB().Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
