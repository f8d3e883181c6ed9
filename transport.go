package mcpwire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultTerminateGrace = 5 * time.Second
)

// Transport carries newline-framed protocol messages over a single bidirectional byte
// stream. One Transport instance owns its stream pair exclusively; concurrent writers
// outside the Transport would interleave frames and corrupt the line-per-message
// invariant.
type Transport interface {
	// SendLine transmits one line plus its newline terminator and does not return
	// until the bytes have been handed to the underlying stream. The line must not
	// contain an embedded newline.
	SendLine(ctx context.Context, line string) error

	// ReceiveLine blocks until a full line is available, the stream is closed, or
	// the context deadline elapses. A deadline failure is reported as ErrReadTimeout
	// and leaves the stream intact; a closed stream is reported as io.EOF.
	ReceiveLine(ctx context.Context) (string, error)

	// Close releases the transport and unblocks any pending receive.
	Close() error
}

// PipeTransport implements Transport over an arbitrary reader/writer pair, such as
// os.Stdin/os.Stdout on a serving process or an io.Pipe pair in tests. Lines are
// written unbuffered so each frame is visible to the peer as soon as SendLine returns.
type PipeTransport struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	readOnce  sync.Once
	lines     chan lineResult
	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex
}

type lineResult struct {
	line string
	err  error
}

// NewPipeTransport creates a PipeTransport over the given reader and writer. The
// transport takes ownership of both: Close closes them if they are closers.
func NewPipeTransport(reader io.Reader, writer io.Writer) *PipeTransport {
	return &PipeTransport{
		reader: reader,
		writer: writer,
		logger: slog.Default().With(slog.String("component", "pipe-transport")),
		lines:  make(chan lineResult),
		done:   make(chan struct{}),
	}
}

// SetLogger replaces the transport's logger. Must be called before first use.
func (t *PipeTransport) SetLogger(logger *slog.Logger) {
	t.logger = logger.With(slog.String("component", "pipe-transport"))
}

func (t *PipeTransport) SendLine(ctx context.Context, line string) error {
	if strings.ContainsRune(line, '\n') {
		return fmt.Errorf("line contains embedded newline")
	}

	select {
	case <-t.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// The write runs in its own goroutine so a stalled peer cannot pin the caller
	// past its context. The transport-level mutex keeps frames whole.
	errs := make(chan error, 1)
	go func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		_, err := io.WriteString(t.writer, line+"\n")
		errs <- err
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return io.ErrClosedPipe
	}
}

func (t *PipeTransport) ReceiveLine(ctx context.Context) (string, error) {
	t.readOnce.Do(func() {
		go t.readLines()
	})

	select {
	case res, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return res.line, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrReadTimeout, ctx.Err())
		}
		return "", ctx.Err()
	case <-t.done:
		return "", io.EOF
	}
}

// Close shuts the transport down. Pending and future receives observe io.EOF.
func (t *PipeTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		// Closing the underlying streams unblocks the reader goroutine.
		if c, ok := t.reader.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
		if c, ok := t.writer.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

// readLines is the transport's single reader goroutine. A timed-out ReceiveLine
// leaves the pending line in flight here; the next ReceiveLine picks it up, so no
// frame is ever dropped by a deadline.
func (t *PipeTransport) readLines() {
	defer close(t.lines)

	// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
	reader := bufio.NewReader(t.reader)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if len(line) > 0 {
				// Deliver the final unterminated line before reporting the error.
				t.deliver(lineResult{line: line})
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				t.logger.Debug("read failed", slog.String("err", err.Error()))
				t.deliver(lineResult{err: err})
			}
			return
		}

		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		if !t.deliver(lineResult{line: line}) {
			return
		}
	}
}

func (t *PipeTransport) deliver(res lineResult) bool {
	select {
	case t.lines <- res:
		return true
	case <-t.done:
		return false
	}
}
