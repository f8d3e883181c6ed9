// Command stdio demonstrates the protocol over a subprocess's standard streams. Run
// with -serve it acts as the serving peer; run plainly it launches itself with -serve
// as an allowlisted child process, walks the paginated listings, reads a resource,
// and runs a query tool before shutting the session down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mcpwire/mcpwire"
)

func main() {
	serve := flag.Bool("serve", false, "run as the serving peer over stdio")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *serve {
		if err := runServer(ctx); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := runClient(ctx); err != nil {
		log.Fatal(err)
	}
}

func runClient(ctx context.Context) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	if err := mcpwire.SetAllowedCommands([]string{self}); err != nil {
		return err
	}

	transport, err := mcpwire.StartCommand(self, []string{"-serve"})
	if err != nil {
		return err
	}

	cli := mcpwire.NewClient(mcpwire.Info{
		Name:    "example-client",
		Version: "1.0",
	}, transport)

	if err := cli.Connect(ctx); err != nil {
		return err
	}
	defer cli.Shutdown(ctx)

	fmt.Printf("connected to %s %s\n", cli.ServerInfo().Name, cli.ServerInfo().Version)

	fmt.Println("resources:")
	for resource, err := range cli.Resources(ctx) {
		if err != nil {
			return err
		}
		fmt.Printf("  %s (%s)\n", resource.URI, resource.MimeType)
	}

	contents, err := cli.ReadResource(ctx, mcpwire.ReadResourceParams{URI: "datastore://albums"})
	if err != nil {
		return err
	}
	fmt.Printf("albums: %s\n", contents.Contents[0].Text)

	result, err := cli.CallTool(ctx, mcpwire.CallToolParams{
		Name:      "query",
		Arguments: []byte(`{"sql": "SELECT name FROM albums WHERE year > 1970 ORDER BY name"}`),
	})
	if err != nil {
		return err
	}
	fmt.Printf("query result: %s\n", result.Content[0].Text)

	return nil
}
