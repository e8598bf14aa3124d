// Package songservice owns the duplex channel to the external song-generation
// host. Requests are fire-and-forget; inbound events arrive unordered on a
// channel that closes when the host goes away.
package songservice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"songify/internal/logging"
	"songify/internal/nativemsg"
)

// ErrClosed is returned by Send after the channel has shut down.
var ErrClosed = errors.New("song service channel closed")

// Sender is the outbound half consumed by the orchestrator.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// Client multiplexes one native-messaging stream.
type Client struct {
	enc    *nativemsg.Encoder
	events chan Event
	done   chan struct{}
	stop   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	err    error
	closed bool
	closer func() error
}

// NewClient wraps an existing reader/writer pair and starts the read loop.
func NewClient(r io.Reader, w io.Writer, logger *slog.Logger) *Client {
	c := &Client{
		enc:    nativemsg.NewEncoder(w),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: logging.NewComponentLogger(logger, "songservice"),
	}
	go c.readLoop(nativemsg.NewDecoder(r))
	return c
}

// Options configures the spawned host process.
type Options struct {
	Command string
	Args    []string
	// Env entries are appended to the daemon environment.
	Env []string
}

// Start launches the native host and connects to its stdio.
func Start(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Command == "" {
		return nil, errors.New("song service command not configured")
	}
	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	client := NewClient(stdout, stdin, logger)
	client.logger.Info("song service started",
		logging.String("command", opts.Command),
		logging.Int("pid", cmd.Process.Pid),
	)
	go client.drainStderr(stderr)
	client.closer = func() error {
		_ = stdin.Close()
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return client, nil
}

// Send writes one request. It does not wait for any reply.
func (c *Client) Send(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.enc.Encode(req); err != nil {
		return err
	}
	c.logger.Debug("song request sent",
		logging.String("action", req.Action),
		logging.String("song_type", string(req.SongType)),
		logging.Int("text_bytes", len(req.Text)),
	)
	return nil
}

// Events returns inbound events. The channel closes when the host stream ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed once the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop stopped. Nil means a clean EOF.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the host down and waits for the process to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closer := c.closer
	c.mu.Unlock()
	close(c.stop)
	if closer == nil {
		return nil
	}
	return closer()
}

func (c *Client) readLoop(dec *nativemsg.Decoder) {
	defer close(c.events)
	defer close(c.done)
	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.setErr(err)
				logging.ErrorWithContext(c.logger, "song service stream failed", "song_service_stream",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the native host command and its stderr output"),
				)
			} else {
				c.logger.Info("song service stream closed")
			}
			return
		}
		evt, err := ParseEvent(payload)
		if err != nil {
			logging.WarnWithContext(c.logger, "undecodable song service message skipped", "song_service_decode",
				logging.Error(err),
				logging.Int("bytes", len(payload)),
				logging.String(logging.FieldImpact, "message ignored"),
			)
			continue
		}
		if evt.Note != "" {
			c.logger.Info("song service note", logging.String("note", evt.Note))
			continue
		}
		select {
		case c.events <- evt:
		case <-c.stop:
			return
		}
	}
}

func (c *Client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		c.logger.Debug("song service stderr", logging.String("line", scanner.Text()))
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
