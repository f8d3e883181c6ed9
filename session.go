package mcpwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionState is the lifecycle position of a client session.
type SessionState int32

// Session lifecycle states. Transitions only move forward: Uninitialized →
// Initialized → ShuttingDown → Terminated, with a jump to Terminated from any state
// when the peer process exits unexpectedly.
const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShuttingDown
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionOption represents the options for a Session.
type SessionOption func(*Session)

// Session sequences the protocol lifecycle over a Transport it owns exclusively:
// the initialize handshake, identifier-correlated request/response exchange, and
// shutdown. Requests may be pipelined; a response is matched to its request by ID,
// not by arrival order. Calling any method other than Connect while the session is
// uninitialized fails fast with ErrProtocolViolation.
type Session struct {
	id        string
	transport Transport
	info      Info
	logger    *slog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	onNotification func(JSONRPCMessage)

	serverInfo         Info
	serverCapabilities ServerCapabilities

	mu      sync.Mutex
	state   SessionState
	pending map[string]chan JSONRPCMessage

	readCtx       context.Context
	readCancel    context.CancelFunc
	readerStarted bool
	readerDone    chan struct{}
	closeOnce     sync.Once
}

// WithSessionLogger sets the logger for the session.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithReadTimeout sets how long a request waits for its correlated response.
func WithReadTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.readTimeout = timeout
	}
}

// WithWriteTimeout sets the deadline for handing a frame to the transport.
func WithWriteTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.writeTimeout = timeout
	}
}

// WithNotificationHandler sets a callback invoked for every notification received
// from the peer. The callback runs on the session's reader loop and must not block.
func WithNotificationHandler(handler func(JSONRPCMessage)) SessionOption {
	return func(s *Session) {
		s.onNotification = handler
	}
}

// NewSession creates a session over the given transport. The session starts
// Uninitialized; Connect must complete before any other call.
func NewSession(info Info, transport Transport, options ...SessionOption) *Session {
	readCtx, readCancel := context.WithCancel(context.Background())
	s := &Session{
		id:         ulid.Make().String(),
		transport:  transport,
		info:       info,
		logger:     slog.Default(),
		state:      StateUninitialized,
		pending:    make(map[string]chan JSONRPCMessage),
		readCtx:    readCtx,
		readCancel: readCancel,
		readerDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.readTimeout == 0 {
		s.readTimeout = defaultReadTimeout
	}
	if s.writeTimeout == 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	s.logger = s.logger.With(slog.String("sessionID", s.id))
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerInfo returns the peer's identification, available after Connect.
func (s *Session) ServerInfo() Info {
	return s.serverInfo
}

// ServerCapabilities returns the peer's advertised capabilities, available after
// Connect.
func (s *Session) ServerCapabilities() ServerCapabilities {
	return s.serverCapabilities
}

// Connect performs the initialize handshake: it sends the initialize request, awaits
// the correlated response, verifies the protocol version, and confirms with the
// initialized notification. On success the session is Initialized and ready for
// method calls. On failure the session is closed: the transport (and any spawned
// subprocess) is torn down and the session ends Terminated.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: initialize in state %s", ErrProtocolViolation, state)
	}
	s.readerStarted = true
	s.mu.Unlock()

	go s.listenMessages()

	if err := s.handshake(ctx); err != nil {
		s.Close()
		return err
	}

	s.logger.Info("session initialized",
		slog.String("server", s.serverInfo.Name),
		slog.String("version", s.serverInfo.Version))
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      s.info,
	}
	res, err := s.request(ctx, methodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(res, &result); err != nil {
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}
	if result.ProtocolVersion != protocolVersion {
		return fmt.Errorf("protocol version mismatch: %s != %s", result.ProtocolVersion, protocolVersion)
	}

	s.serverInfo = result.ServerInfo
	s.serverCapabilities = result.Capabilities

	if err := s.notify(ctx, methodNotificationsInitialized, nil); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	s.mu.Lock()
	// The peer may have died between the handshake and here.
	if s.state == StateUninitialized {
		s.state = StateInitialized
	}
	state := s.state
	s.mu.Unlock()

	if state != StateInitialized {
		return fmt.Errorf("%w: session %s during initialize", ErrConnectionLost, state)
	}
	return nil
}

// Call issues a request and blocks until the correlated response arrives, the
// configured read timeout elapses, the context is done, or the session terminates.
// It returns the raw result payload, or the peer's error object as a *JSONRPCError.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateInitialized:
	case StateTerminated:
		return nil, fmt.Errorf("%w: session terminated", ErrConnectionLost)
	default:
		return nil, fmt.Errorf("%w: %s called in state %s", ErrProtocolViolation, method, state)
	}

	return s.request(ctx, method, params)
}

// Notify sends a notification; no response is expected or correlated.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateInitialized {
		return fmt.Errorf("%w: %s called in state %s", ErrProtocolViolation, method, state)
	}
	return s.notify(ctx, method, params)
}

// Shutdown ends the session in order: it sends the shutdown request, waits for the
// response or the read timeout, then tears the transport down. Shutdown after
// termination is a no-op.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateTerminated, StateShuttingDown:
		s.mu.Unlock()
		return nil
	case StateUninitialized:
		s.mu.Unlock()
		s.Close()
		return nil
	}
	s.state = StateShuttingDown
	s.mu.Unlock()

	// A peer that never answers shutdown is still torn down; the timeout is part
	// of the contract, not a failure.
	if _, err := s.request(ctx, methodShutdown, nil); err != nil &&
		!errors.Is(err, ErrReadTimeout) && !errors.Is(err, ErrConnectionLost) {
		s.logger.Warn("shutdown request failed", slog.String("err", err.Error()))
	}

	s.Close()
	return nil
}

// Close force-terminates the session: the reader loop stops, the transport is closed
// (escalating to a kill for subprocess transports), and all outstanding requests
// resolve with ErrConnectionLost.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.readCancel()
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("transport close failed", slog.String("err", err.Error()))
		}
		s.mu.Lock()
		started := s.readerStarted
		s.mu.Unlock()
		if started {
			<-s.readerDone
		}
		s.terminate()
	})
}

// request sends a correlated request regardless of session state. State guards live
// in Connect, Call and Shutdown.
func (s *Session) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      MustString(uuid.New().String()),
		Method:  method,
	}
	if params != nil {
		paramsBs, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		msg.Params = paramsBs
	}

	results := make(chan JSONRPCMessage, 1)

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session terminated", ErrConnectionLost)
	}
	s.pending[string(msg.ID)] = results
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, string(msg.ID))
		s.mu.Unlock()
	}()

	// The timeout clock covers the whole exchange, send included: a peer that has
	// stopped draining its stdin wedges the write, and that surfaces as
	// ErrReadTimeout rather than an untyped context error.
	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	sendErrs := make(chan error, 1)
	go func() {
		sendErrs <- s.send(ctx, msg)
	}()

	for {
		select {
		case err := <-sendErrs:
			if err != nil {
				return nil, err
			}
			// Sent; keep waiting for the correlated response.
			sendErrs = nil
		case res, ok := <-results:
			if !ok {
				return nil, fmt.Errorf("%w: peer exited with request outstanding", ErrConnectionLost)
			}
			if res.Error != nil {
				return nil, res.Error
			}
			return res.Result, nil
		case <-timer.C:
			return nil, fmt.Errorf("%w: no response to %s within %s", ErrReadTimeout, method, s.readTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Session) notify(ctx context.Context, method string, params any) error {
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		paramsBs, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		msg.Params = paramsBs
	}
	return s.send(ctx, msg)
}

func (s *Session) send(ctx context.Context, msg JSONRPCMessage) error {
	line, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	sCtx, sCancel := context.WithTimeout(ctx, s.writeTimeout)
	defer sCancel()

	// Strip the frame terminator; the transport owns framing.
	return s.transport.SendLine(sCtx, string(line[:len(line)-1]))
}

// listenMessages is the session's dedicated reader loop. It correlates responses to
// outstanding requests by identifier and hands notifications to the configured
// handler. It exits when the transport reports a closed stream, moving the session
// to Terminated and failing every outstanding request with ErrConnectionLost.
func (s *Session) listenMessages() {
	defer close(s.readerDone)
	defer s.terminate()

	for {
		line, err := s.transport.ReceiveLine(s.readCtx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.logger.Debug("receive failed", slog.String("err", err.Error()))
			}
			return
		}

		msg, err := DecodeMessage([]byte(line))
		if err != nil {
			s.logger.Error("failed to decode message", slog.String("err", err.Error()))
			continue
		}

		switch {
		case msg.Method == "" && msg.ID != "":
			// Response: correlate by identifier. An unknown identifier is a
			// peer bug; log and drop.
			s.mu.Lock()
			results, ok := s.pending[string(msg.ID)]
			if ok {
				delete(s.pending, string(msg.ID))
			}
			s.mu.Unlock()
			if !ok {
				s.logger.Warn("response with no outstanding request",
					slog.String("id", string(msg.ID)))
				continue
			}
			results <- msg
		case msg.Method != "":
			if s.onNotification != nil {
				s.onNotification(msg)
			} else {
				s.logger.Debug("dropping unhandled notification",
					slog.String("method", msg.Method))
			}
		}
	}
}

// terminate moves the session to Terminated and fails all outstanding requests.
func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated

	for id, results := range s.pending {
		close(results)
		delete(s.pending, id)
	}
}
