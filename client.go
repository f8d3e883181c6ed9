package mcpwire

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// Client is a typed facade over a Session. It owns the session lifecycle and exposes
// one method per protocol operation, plus iterators that follow pagination cursors
// until the listing is exhausted.
type Client struct {
	session *Session
}

// NewClient creates a client for the given transport. The transport is owned by the
// client from here on; Close and Shutdown tear it down.
func NewClient(info Info, transport Transport, options ...SessionOption) *Client {
	return &Client{
		session: NewSession(info, transport, options...),
	}
}

// Connect performs the initialize handshake. It must complete before any other call.
func (c *Client) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// State returns the underlying session's lifecycle state.
func (c *Client) State() SessionState {
	return c.session.State()
}

// ServerInfo returns the peer's identification, available after Connect.
func (c *Client) ServerInfo() Info {
	return c.session.ServerInfo()
}

// ServerCapabilities returns the peer's advertised capabilities, available after
// Connect.
func (c *Client) ServerCapabilities() ServerCapabilities {
	return c.session.ServerCapabilities()
}

// ListResources retrieves one page of resources. An empty cursor requests the first
// page; the result's NextCursor, when present, addresses the following page.
func (c *Client) ListResources(ctx context.Context, params ListResourcesParams) (ListResourcesResult, error) {
	return call[ListResourcesResult](ctx, c.session, MethodResourcesList, params)
}

// ReadResource fetches the contents of the resource at the given URI.
func (c *Client) ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error) {
	return call[ReadResourceResult](ctx, c.session, MethodResourcesRead, params)
}

// ListTools retrieves one page of tools.
func (c *Client) ListTools(ctx context.Context, params ListToolsParams) (ListToolsResult, error) {
	return call[ListToolsResult](ctx, c.session, MethodToolsList, params)
}

// CallTool invokes the named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	return call[CallToolResult](ctx, c.session, MethodToolsCall, params)
}

// ListPrompts retrieves one page of prompts.
func (c *Client) ListPrompts(ctx context.Context, params ListPromptsParams) (ListPromptsResult, error) {
	return call[ListPromptsResult](ctx, c.session, MethodPromptsList, params)
}

// GetPrompt renders the named prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, params GetPromptParams) (GetPromptResult, error) {
	return call[GetPromptResult](ctx, c.session, MethodPromptsGet, params)
}

// Ping checks that the peer is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.session.Call(ctx, methodPing, nil)
	return err
}

// Call issues a raw request for methods without a typed wrapper.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.session.Call(ctx, method, params)
}

// Resources iterates over every resource the peer exposes, following pagination
// cursors page by page. Iteration stops at the first error; the error is yielded
// with a zero Resource.
func (c *Client) Resources(ctx context.Context) iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		var cursor string
		for {
			page, err := c.ListResources(ctx, ListResourcesParams{Cursor: cursor})
			if err != nil {
				yield(Resource{}, err)
				return
			}
			for _, r := range page.Resources {
				if !yield(r, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Tools iterates over every tool the peer exposes, following pagination cursors.
func (c *Client) Tools(ctx context.Context) iter.Seq2[Tool, error] {
	return func(yield func(Tool, error) bool) {
		var cursor string
		for {
			page, err := c.ListTools(ctx, ListToolsParams{Cursor: cursor})
			if err != nil {
				yield(Tool{}, err)
				return
			}
			for _, t := range page.Tools {
				if !yield(t, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Prompts iterates over every prompt the peer exposes, following pagination cursors.
func (c *Client) Prompts(ctx context.Context) iter.Seq2[Prompt, error] {
	return func(yield func(Prompt, error) bool) {
		var cursor string
		for {
			page, err := c.ListPrompts(ctx, ListPromptsParams{Cursor: cursor})
			if err != nil {
				yield(Prompt{}, err)
				return
			}
			for _, p := range page.Prompts {
				if !yield(p, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Shutdown ends the session in order and tears the transport down.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.session.Shutdown(ctx)
}

// Close force-terminates the session and transport without the shutdown exchange.
func (c *Client) Close() {
	c.session.Close()
}

func call[T any](ctx context.Context, s *Session, method string, params any) (T, error) {
	var result T

	res, err := s.Call(ctx, method, params)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal %s result: %w", method, err)
	}
	return result, nil
}
