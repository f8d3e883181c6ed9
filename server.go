package mcpwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ResourceProvider supplies the resources surface of a server.
type ResourceProvider interface {
	// Resources returns the full resource listing. The server paginates it.
	Resources(ctx context.Context) ([]Resource, error)
	// ReadResource returns the contents of one resource. Unknown URIs must be
	// reported as ErrNotFound.
	ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error)
}

// ToolProvider supplies the tools surface of a server.
type ToolProvider interface {
	Tools(ctx context.Context) ([]Tool, error)
	// CallTool executes one tool. Unknown names must be reported as ErrNotFound.
	CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error)
}

// PromptProvider supplies the prompts surface of a server.
type PromptProvider interface {
	Prompts(ctx context.Context) ([]Prompt, error)
	// GetPrompt renders one prompt. Unknown names must be reported as ErrNotFound.
	GetPrompt(ctx context.Context, params GetPromptParams) (GetPromptResult, error)
}

// ServerOption represents the options for a Server.
type ServerOption func(*Server)

// Server routes incoming protocol requests to registered providers. Capabilities are
// derived from which providers are present; a request against an absent surface is
// answered with a method-not-found error. Handlers run concurrently so a slow tool
// call does not block an interleaved listing request.
type Server struct {
	info     Info
	logger   *slog.Logger
	pageSize int

	resources ResourceProvider
	tools     ToolProvider
	prompts   PromptProvider

	handlers map[string]func(context.Context, JSONRPCMessage) (any, error)
}

// WithResourceProvider registers the resources surface.
func WithResourceProvider(p ResourceProvider) ServerOption {
	return func(s *Server) {
		s.resources = p
	}
}

// WithToolProvider registers the tools surface.
func WithToolProvider(p ToolProvider) ServerOption {
	return func(s *Server) {
		s.tools = p
	}
}

// WithPromptProvider registers the prompts surface.
func WithPromptProvider(p PromptProvider) ServerOption {
	return func(s *Server) {
		s.prompts = p
	}
}

// WithPageSize sets the default page size for list methods, clamped to MaxPageSize.
func WithPageSize(size int) ServerOption {
	return func(s *Server) {
		s.pageSize = size
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server with the given identity and providers.
func NewServer(info Info, options ...ServerOption) *Server {
	s := &Server{
		info:     info,
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.pageSize > MaxPageSize {
		s.pageSize = MaxPageSize
	}
	s.logger = s.logger.With(slog.String("server", info.Name))

	// The routing table is fixed at construction; only present surfaces route.
	s.handlers = map[string]func(context.Context, JSONRPCMessage) (any, error){
		methodPing: func(context.Context, JSONRPCMessage) (any, error) {
			return struct{}{}, nil
		},
	}
	if s.resources != nil {
		s.handlers[MethodResourcesList] = s.handleListResources
		s.handlers[MethodResourcesRead] = s.handleReadResource
	}
	if s.tools != nil {
		s.handlers[MethodToolsList] = s.handleListTools
		s.handlers[MethodToolsCall] = s.handleCallTool
	}
	if s.prompts != nil {
		s.handlers[MethodPromptsList] = s.handleListPrompts
		s.handlers[MethodPromptsGet] = s.handleGetPrompt
	}
	return s
}

func (s *Server) capabilities() ServerCapabilities {
	caps := ServerCapabilities{}
	if s.resources != nil {
		caps.Resources = &ResourcesCapability{}
	}
	if s.tools != nil {
		caps.Tools = &ToolsCapability{}
	}
	if s.prompts != nil {
		caps.Prompts = &PromptsCapability{}
	}
	return caps
}

// Serve runs the request loop over the given transport until the peer closes the
// stream, a shutdown request completes, or ctx is done. Serve owns the transport and
// closes it on return.
func (s *Server) Serve(ctx context.Context, transport Transport) error {
	defer transport.Close()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// In-flight handlers drain before the context and transport go away.
	var wg sync.WaitGroup
	defer wg.Wait()

	initialized := false
	handshaken := false

	for {
		line, err := transport.ReceiveLine(serveCtx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		msg, err := DecodeMessage([]byte(line))
		if err != nil {
			if errors.Is(err, ErrEmptyMessage) {
				continue
			}
			s.logger.Error("failed to decode message", slog.String("err", err.Error()))
			s.sendParseError(serveCtx, transport, &JSONRPCError{
				Code:    CodeParseError,
				Message: err.Error(),
			})
			continue
		}

		// Notifications carry no ID and get no response.
		if msg.ID == "" {
			if msg.Method == methodNotificationsInitialized {
				initialized = true
			}
			continue
		}

		switch {
		case msg.Method == methodInitialize:
			if handshaken {
				s.sendError(serveCtx, transport, msg.ID, &JSONRPCError{
					Code:    CodeInvalidRequest,
					Message: "initialize: session already initialized",
				})
				continue
			}
			if err := s.handleInitialize(serveCtx, transport, msg); err != nil {
				s.logger.Error("initialize failed", slog.String("err", err.Error()))
				continue
			}
			handshaken = true

		case msg.Method == methodShutdown:
			// Answer, then let in-flight handlers drain and return.
			s.sendResult(serveCtx, transport, msg.ID, struct{}{})
			s.logger.Info("shutdown requested, stopping")
			return nil

		case !initialized:
			s.sendError(serveCtx, transport, msg.ID, &JSONRPCError{
				Code:    CodeInvalidRequest,
				Message: fmt.Sprintf("%s: session not initialized", msg.Method),
			})

		default:
			handler, ok := s.handlers[msg.Method]
			if !ok {
				s.sendError(serveCtx, transport, msg.ID, &JSONRPCError{
					Code:    CodeMethodNotFound,
					Message: fmt.Sprintf("method not found: %s", msg.Method),
				})
				continue
			}
			wg.Add(1)
			go func(msg JSONRPCMessage) {
				defer wg.Done()
				result, err := handler(serveCtx, msg)
				if err != nil {
					s.sendError(serveCtx, transport, msg.ID, asJSONRPCError(err))
					return
				}
				s.sendResult(serveCtx, transport, msg.ID, result)
			}(msg)
		}
	}
}

// ServeStdio serves over the process's own standard streams, for peers launched as a
// child process.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, NewPipeTransport(os.Stdin, os.Stdout))
}

func (s *Server) handleInitialize(ctx context.Context, transport Transport, msg JSONRPCMessage) error {
	var params initializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendError(ctx, transport, msg.ID, &JSONRPCError{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("invalid initialize params: %s", err),
		})
		return err
	}
	if params.ProtocolVersion != protocolVersion {
		err := fmt.Errorf("unsupported protocol version: %s", params.ProtocolVersion)
		s.sendError(ctx, transport, msg.ID, &JSONRPCError{
			Code:    CodeInvalidParams,
			Message: err.Error(),
		})
		return err
	}

	s.logger.Info("client connected",
		slog.String("client", params.ClientInfo.Name),
		slog.String("version", params.ClientInfo.Version))

	s.sendResult(ctx, transport, msg.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.capabilities(),
		ServerInfo:      s.info,
	})
	return nil
}

func (s *Server) handleListResources(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params ListResourcesParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}

	items, err := s.resources.Resources(ctx)
	if err != nil {
		return nil, err
	}
	page, err := Paginate(items, params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return ListResourcesResult{
		Resources:  page.Items,
		NextCursor: page.NextCursor,
	}, nil
}

func (s *Server) handleReadResource(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params ReadResourceParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}
	return s.resources.ReadResource(ctx, params)
}

func (s *Server) handleListTools(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params ListToolsParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}

	items, err := s.tools.Tools(ctx)
	if err != nil {
		return nil, err
	}
	page, err := Paginate(items, params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return ListToolsResult{
		Tools:      page.Items,
		NextCursor: page.NextCursor,
	}, nil
}

func (s *Server) handleCallTool(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params CallToolParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}
	return s.tools.CallTool(ctx, params)
}

func (s *Server) handleListPrompts(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params ListPromptsParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}

	items, err := s.prompts.Prompts(ctx)
	if err != nil {
		return nil, err
	}
	page, err := Paginate(items, params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return ListPromptsResult{
		Prompts:    page.Items,
		NextCursor: page.NextCursor,
	}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, msg JSONRPCMessage) (any, error) {
	var params GetPromptParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return nil, err
	}
	return s.prompts.GetPrompt(ctx, params)
}

func (s *Server) sendResult(ctx context.Context, transport Transport, id MustString, result any) {
	resultBs, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to marshal result", slog.String("err", err.Error()))
		s.sendError(ctx, transport, id, &JSONRPCError{
			Code:    CodeInternalError,
			Message: err.Error(),
		})
		return
	}
	s.sendMsg(ctx, transport, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resultBs,
	})
}

func (s *Server) sendError(ctx context.Context, transport Transport, id MustString, jsonErr *JSONRPCError) {
	s.sendMsg(ctx, transport, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   jsonErr,
	})
}

// sendParseError answers a frame that could not be decoded. There is no request id
// to echo, so the response carries a literal null id as JSON-RPC 2.0 prescribes.
func (s *Server) sendParseError(ctx context.Context, transport Transport, jsonErr *JSONRPCError) {
	bs, err := json.Marshal(struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      any           `json:"id"`
		Error   *JSONRPCError `json:"error"`
	}{
		JSONRPC: JSONRPCVersion,
		Error:   jsonErr,
	})
	if err != nil {
		s.logger.Error("failed to encode message", slog.String("err", err.Error()))
		return
	}

	sCtx, sCancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer sCancel()

	if err := transport.SendLine(sCtx, string(bs)); err != nil {
		s.logger.Error("failed to send message", slog.String("err", err.Error()))
	}
}

func (s *Server) sendMsg(ctx context.Context, transport Transport, msg JSONRPCMessage) {
	line, err := EncodeMessage(msg)
	if err != nil {
		s.logger.Error("failed to encode message", slog.String("err", err.Error()))
		return
	}

	sCtx, sCancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer sCancel()

	if err := transport.SendLine(sCtx, string(line[:len(line)-1])); err != nil {
		s.logger.Error("failed to send message",
			slog.String("id", string(msg.ID)),
			slog.String("err", err.Error()))
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &JSONRPCError{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %s", err),
		}
	}
	return nil
}
