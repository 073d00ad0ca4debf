package twitch

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/twitch-chat/internal/logger"
	"github.com/matt0x6f/twitch-chat/internal/metrics"
)

const (
	// DefaultServerName is the certificate name Twitch chat servers present
	DefaultServerName = "irc.chat.twitch.tv"

	readBufferSize = 4096
	maxLineLength  = 1 << 20
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("connection closed")
	// ErrInvalidLine is returned for outbound lines containing CR or LF.
	ErrInvalidLine = errors.New("line contains a line terminator")

	crlf = []byte("\r\n")
)

// ConnectError reports a failed dial or TLS handshake.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a failed write to the transport.
type WriteError struct {
	Line string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to send %q: %v", e.Line, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options configures Open.
type Options struct {
	UseTLS bool
	// VerifyPeer=false disables certificate validation (self-signed test servers only)
	VerifyPeer bool
	// ServerName overrides DefaultServerName for certificate validation
	ServerName  string
	DialTimeout time.Duration
	// Registry is shared with the caller so handlers survive reconnects.
	// A fresh one is created when nil.
	Registry *Registry
}

// Conn is one chat session. It is not restartable: after Close or a
// fatal read error open a new Conn.
type Conn struct {
	transport net.Conn
	writeMu   sync.Mutex
	callbacks *Registry

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// tasksMu orders tasks.Add in KeepAlive before the cancel in Close
	tasksMu sync.Mutex
	tasks   sync.WaitGroup

	done  chan struct{}
	errMu sync.Mutex
	err   error
}

// Open dials address, optionally negotiates TLS, and starts the receive loop.
func Open(ctx context.Context, address string, opts Options) (*Conn, error) {
	metrics.Init()

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Addr: address, Err: err}
	}

	transport := raw
	if opts.UseTLS {
		serverName := opts.ServerName
		if serverName == "" {
			serverName = DefaultServerName
		}
		tlsConn := tls.Client(raw, &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: !opts.VerifyPeer,
			MinVersion:         tls.VersionTLS12,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, &ConnectError{Addr: address, Err: fmt.Errorf("tls handshake: %w", err)}
		}
		transport = tlsConn
		logger.Log.Info().Str("server", address).Bool("verify", opts.VerifyPeer).Msg("TLS mode")
	} else {
		logger.Log.Warn().Str("server", address).Msg("Clear text mode")
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	c := &Conn{
		transport: transport,
		callbacks: registry,
		done:      make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	metrics.SetConnected(true)
	go c.readLoop()

	return c, nil
}

// Registry returns the callback table driven by this connection.
func (c *Conn) Registry() *Registry {
	return c.callbacks
}

// Register is shorthand for c.Registry().Register.
func (c *Conn) Register(kind EventKind, h Handler) {
	c.callbacks.Register(kind, h)
}

// Done is closed when the receive loop stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the receive loop, or nil while it is
// running or after a clean Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close stops the receive loop and keep-alive tasks and closes the transport.
// It is safe to call from a handler.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.tasksMu.Lock()
		c.cancel()
		c.tasksMu.Unlock()

		err = c.transport.Close()
		c.tasks.Wait()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer metrics.SetConnected(false)

	scanner := bufio.NewScanner(c.transport)
	scanner.Buffer(make([]byte, readBufferSize), maxLineLength)
	scanner.Split(scanCRLF)

	for scanner.Scan() {
		if c.ctx.Err() != nil {
			return
		}
		line := strings.ToValidUTF8(scanner.Text(), "\uFFFD")
		if line == "" {
			continue
		}
		metrics.LinesReceived.Inc()
		logger.Log.Debug().Str("line", line).Msg("[Twitch] RAW")
		c.dispatch(Parse(line))
	}

	if c.ctx.Err() != nil {
		logger.Log.Debug().Msg("Receive loop stopped by shutdown")
		return
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	metrics.ReadErrors.Inc()
	logger.Log.Error().Err(err).Msg("Receive loop stopped")
}

// scanCRLF splits on "\r\n" only, holding partial lines until more data arrives.
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, crlf); i >= 0 {
		return i + len(crlf), data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (c *Conn) dispatch(msg Message) {
	for _, d := range c.callbacks.handlersFor(msg) {
		metrics.Dispatches.WithLabelValues(d.kind.String()).Inc()
		c.invoke(d, msg)
	}
}

func (c *Conn) invoke(d dispatch, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error().
				Interface("panic", r).
				Str("kind", d.kind.String()).
				Str("command", msg.Context.Command).
				Msg("PANIC in chat handler")
		}
	}()
	d.handler(c, msg)
}

// Send writes line followed by CRLF. Concurrent calls never interleave.
func (c *Conn) Send(line string) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if strings.ContainsAny(line, "\r\n") {
		return ErrInvalidLine
	}

	logged := redact(line)
	logger.Log.Debug().Str("line", logged).Msg("[BOT] Sending")

	c.writeMu.Lock()
	_, err := io.WriteString(c.transport, line+"\r\n")
	c.writeMu.Unlock()

	if err != nil {
		metrics.WriteErrors.Inc()
		if c.ctx.Err() != nil {
			return ErrClosed
		}
		return &WriteError{Line: logged, Err: err}
	}
	metrics.LinesSent.Inc()
	return nil
}

// redact hides the OAuth token of PASS lines.
func redact(line string) string {
	if strings.HasPrefix(line, "PASS ") {
		return "PASS oauth:***"
	}
	return line
}

// Authenticate sends PASS then NICK. A leading "oauth:" on token is accepted.
func (c *Conn) Authenticate(token, nickname string) error {
	token = strings.TrimPrefix(token, "oauth:")
	if err := c.Send("PASS oauth:" + token); err != nil {
		return err
	}
	return c.Send("NICK " + nickname)
}

// JoinChannel sends JOIN for the channel, with or without a leading '#'.
func (c *Conn) JoinChannel(name string) error {
	return c.Send("JOIN #" + strings.TrimPrefix(name, "#"))
}

// RequestCapabilities sends one CAP REQ line per capability, in order.
func (c *Conn) RequestCapabilities(caps ...Capability) error {
	for _, capability := range caps {
		if err := c.Send(capability.Request()); err != nil {
			return err
		}
	}
	return nil
}

// Privmsg sends text to a channel or user.
func (c *Conn) Privmsg(target, text string) error {
	msg := ircmsg.MakeMessage(nil, "", "PRIVMSG", target, text)
	msg.ForceTrailing()
	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("failed to build PRIVMSG: %w", err)
	}
	return c.Send(strings.TrimRight(line, "\r\n"))
}

// Pong answers a server PING, echoing its payload.
func (c *Conn) Pong(payload string) error {
	if payload == "" {
		return c.Send("PONG")
	}
	return c.Send("PONG :" + payload)
}

// KeepAlive sends a bare PING now and then every interval until Close.
func (c *Conn) KeepAlive(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("keep-alive interval must be positive, got %s", interval)
	}
	c.tasksMu.Lock()
	if c.ctx.Err() != nil {
		c.tasksMu.Unlock()
		return ErrClosed
	}
	c.tasks.Add(1)
	c.tasksMu.Unlock()

	go func() {
		defer c.tasks.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := c.Send("PING"); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				logger.Log.Warn().Err(err).Msg("Keep-alive PING failed")
			}
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}
