// Package mcpwire implements a client/server protocol engine speaking JSON-RPC 2.0
// over newline-delimited frames, typically across a child process's standard streams.
//
// A Server routes requests to ResourceProvider, ToolProvider and PromptProvider
// implementations and paginates list results with opaque base64 cursors. A Client
// drives a Session through its lifecycle: the initialize handshake, pipelined
// identifier-correlated requests, and an orderly shutdown. Subprocess peers are
// launched through StartCommand, gated by a process-wide command allowlist, and are
// guaranteed to be stopped after Terminate returns.
package mcpwire
