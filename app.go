package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gen2brain/beeep"
	"github.com/matt0x6f/twitch-chat/internal/config"
	"github.com/matt0x6f/twitch-chat/internal/constants"
	"github.com/matt0x6f/twitch-chat/internal/events"
	"github.com/matt0x6f/twitch-chat/internal/logger"
	"github.com/matt0x6f/twitch-chat/internal/metrics"
	"github.com/matt0x6f/twitch-chat/internal/storage"
	"github.com/matt0x6f/twitch-chat/internal/twitch"
)

// ErrAuthFailed is returned by Run when Twitch rejects the token
var ErrAuthFailed = errors.New("twitch login authentication failed")

// appEvents are the event types App records or acts on
var appEvents = []string{
	twitch.EventMessageReceived,
	twitch.EventWhisperReceived,
	twitch.EventMessageSent,
	twitch.EventConnectionEstablished,
	twitch.EventConnectionLost,
	twitch.EventError,
}

// App wires one chat bot: connection supervisor, handlers, chat log and notifications
type App struct {
	cfg      *config.Config
	registry *twitch.Registry
	eventBus *events.EventBus
	storage  *storage.Storage // nil when the chat log is disabled

	// notify raises a desktop notification
	notify func(title, message string) error

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	mu            sync.RWMutex
	conn          *twitch.Conn
	metricsServer *http.Server
	authFailed    atomic.Bool
}

// NewApp creates the bot for cfg
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:      cfg,
		registry: twitch.NewRegistry(),
		eventBus: events.NewEventBus(),
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		reconnectInitial: constants.ReconnectInitialDelay,
		reconnectMax:     constants.ReconnectMaxDelay,
	}

	if cfg.Application.Database != "" {
		stor, err := storage.NewStorage(cfg.Application.Database, constants.LogBufferSize, constants.LogFlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.storage = stor
	}

	for _, eventType := range appEvents {
		app.eventBus.Subscribe(eventType, app)
	}

	app.setupHandlers()

	return app, nil
}

// setupHandlers registers the chat handlers. The registry outlives each
// connection, so handlers survive reconnects.
func (a *App) setupHandlers() {
	a.registry.Register(twitch.KindAny, func(c *twitch.Conn, msg twitch.Message) {
		switch msg.Context.Command {
		case "RECONNECT":
			logger.Log.Info().Msg("Server requested reconnect")
			c.Close()
			return
		case "NOTICE":
			if strings.Contains(msg.Body, "Login authentication failed") || strings.Contains(msg.Body, "Improperly formatted auth") {
				logger.Log.Error().Str("notice", msg.Body).Msg("Authentication rejected")
				a.authFailed.Store(true)
				c.Close()
				return
			}
		}
		a.eventBus.Emit(twitch.MessageEvent(msg))
	})

	a.registry.Register(twitch.KindPing, func(c *twitch.Conn, msg twitch.Message) {
		payload := msg.Body
		if payload == "" {
			payload = msg.Context.Sender
		}
		if err := c.Pong(payload); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to answer PING")
		}
	})

	a.registry.Register(twitch.KindPrivateMessage, func(c *twitch.Conn, msg twitch.Message) {
		entry := logger.Log.Info().
			Str("channel", msg.Context.Receiver).
			Str("user", msg.Context.Sender).
			Str("message", msg.Body)
		if name, ok := msg.Tag("display-name"); ok && name != "" {
			entry = entry.Str("display_name", name)
		}
		entry.Msg("[Twitch] PRIVMSG")
		a.reply(c, msg)
	})

	a.registry.Register(twitch.KindWhisper, func(c *twitch.Conn, msg twitch.Message) {
		logger.Log.Info().
			Str("user", msg.Context.Sender).
			Str("message", msg.Body).
			Msg("[Twitch] WHISPER")
	})
}

// reply answers configured !triggers in the channel the trigger came from
func (a *App) reply(c *twitch.Conn, msg twitch.Message) {
	fields := strings.Fields(msg.Body)
	if len(fields) == 0 {
		return
	}
	text, ok := a.cfg.User.Replies[strings.ToLower(fields[0])]
	if !ok {
		return
	}
	if err := c.Privmsg(msg.Context.Receiver, text); err != nil {
		logger.Log.Error().Err(err).Str("channel", msg.Context.Receiver).Msg("Failed to send reply")
		return
	}
	a.eventBus.Emit(events.Event{
		Type: twitch.EventMessageSent,
		Data: map[string]interface{}{
			"sender":   a.cfg.User.Nickname,
			"command":  "PRIVMSG",
			"receiver": msg.Context.Receiver,
			"body":     text,
		},
		Timestamp: time.Now(),
		Source:    events.EventSourceTwitch,
	})
}

// OnEvent records chat in the log and raises whisper notifications
func (a *App) OnEvent(event events.Event) {
	msg := twitch.MessageFromEvent(event)

	switch event.Type {
	case twitch.EventMessageReceived:
		if msg.Context.Command == "PRIVMSG" {
			a.record(event, msg, storage.MessageTypePrivmsg)
		}

	case twitch.EventWhisperReceived:
		a.record(event, msg, storage.MessageTypeWhisper)
		if a.cfg.Application.NotifyWhispers {
			if err := a.notify("Whisper from "+msg.Context.Sender, msg.Body); err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to show whisper notification")
			}
		}

	case twitch.EventMessageSent:
		a.record(event, msg, storage.MessageTypeSent)

	case twitch.EventConnectionEstablished, twitch.EventConnectionLost, twitch.EventError:
		a.recordStatus(event)
	}
}

func logEntry(event events.Event, msg twitch.Message, messageType string) storage.Message {
	return storage.Message{
		Channel:     msg.Context.Receiver,
		Sender:      msg.Context.Sender,
		Command:     msg.Context.Command,
		Body:        msg.Body,
		Tags:        msg.Tags,
		MessageType: messageType,
		Timestamp:   event.Timestamp,
	}
}

func (a *App) record(event events.Event, msg twitch.Message, messageType string) {
	if a.storage == nil {
		return
	}
	if err := a.storage.WriteMessage(logEntry(event, msg, messageType)); err != nil {
		logger.Log.Warn().Err(err).Str("type", messageType).Msg("Failed to log message")
	}
}

// recordStatus writes connection status lines straight through, so a crash
// right after a disconnect still leaves the record behind
func (a *App) recordStatus(event events.Event) {
	if a.storage == nil {
		return
	}
	status := event.String("status")
	if status == "" {
		status = event.String("error")
	}
	msg := twitch.Message{
		Context: twitch.MessageContext{Sender: "*", Command: event.Type, Receiver: "*"},
		Body:    status,
	}
	if err := a.storage.WriteMessageSync(logEntry(event, msg, storage.MessageTypeStatus)); err != nil {
		logger.Log.Warn().Err(err).Str("type", event.Type).Msg("Failed to log status")
	}
}

// Conn returns the live connection, or nil between sessions
func (a *App) Conn() *twitch.Conn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn
}

func (a *App) setConn(c *twitch.Conn) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
}

// connect opens one session: capabilities, login, joins and heartbeat
func (a *App) connect(ctx context.Context) (*twitch.Conn, error) {
	logger.Log.Info().Str("server", a.cfg.Addr()).Msg("Connecting")

	conn, err := twitch.Open(ctx, a.cfg.Addr(), twitch.Options{
		UseTLS:      a.cfg.Server.TLS,
		VerifyPeer:  a.cfg.Server.TLSVerify,
		DialTimeout: 10 * time.Second,
		Registry:    a.registry,
	})
	if err != nil {
		return nil, err
	}

	caps, err := a.cfg.CapabilityList()
	if err != nil {
		conn.Close()
		return nil, backoff.Permanent(err)
	}

	setup := func() error {
		if err := conn.RequestCapabilities(caps...); err != nil {
			return err
		}
		if err := conn.Authenticate(a.cfg.User.Token, a.cfg.User.Nickname); err != nil {
			return err
		}
		for _, channel := range a.cfg.JoinList() {
			if err := conn.JoinChannel(channel); err != nil {
				return err
			}
			logger.Log.Info().Str("channel", channel).Msg("Joining channel")
		}
		return conn.KeepAlive(a.cfg.KeepAlive())
	}
	if err := setup(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session setup failed: %w", err)
	}
	return conn, nil
}

// Run keeps a session open until ctx is cancelled, reconnecting with
// exponential backoff whenever the receive loop stops.
func (a *App) Run(ctx context.Context) error {
	metrics.Init()
	a.startMetricsServer()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.Reconnects.Inc()
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = a.reconnectInitial
		policy.MaxInterval = a.reconnectMax

		conn, err := backoff.Retry(ctx, func() (*twitch.Conn, error) {
			if a.authFailed.Load() {
				return nil, backoff.Permanent(ErrAuthFailed)
			}
			return a.connect(ctx)
		},
			backoff.WithBackOff(policy),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Log.Warn().Err(err).Dur("retry_in", next).Msg("Connection attempt failed")
				a.eventBus.Emit(events.Event{
					Type:   twitch.EventError,
					Data:   map[string]interface{}{"error": err.Error()},
					Source: events.EventSourceSystem,
				})
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		a.setConn(conn)
		a.eventBus.EmitSync(events.Event{
			Type:   twitch.EventConnectionEstablished,
			Data:   map[string]interface{}{"status": "Connected to " + a.cfg.Addr()},
			Source: events.EventSourceSystem,
		})

		select {
		case <-ctx.Done():
			conn.Close()
			<-conn.Done()
			a.setConn(nil)
			return nil
		case <-conn.Done():
		}

		conn.Close()
		a.setConn(nil)

		status := "Disconnected"
		if err := conn.Err(); err != nil {
			status = "Disconnected: " + err.Error()
		}
		a.eventBus.EmitSync(events.Event{
			Type:   twitch.EventConnectionLost,
			Data:   map[string]interface{}{"status": status},
			Source: events.EventSourceSystem,
		})

		if a.authFailed.Load() {
			return ErrAuthFailed
		}
		logger.Log.Warn().Str("status", status).Msg("Connection lost, reconnecting")
	}
}

func (a *App) startMetricsServer() {
	addr := a.cfg.Application.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.mu.Lock()
	a.metricsServer = server
	a.mu.Unlock()

	go func() {
		logger.Log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Close stops the metrics server, drains pending events and closes the chat log
func (a *App) Close() error {
	a.mu.Lock()
	server := a.metricsServer
	a.metricsServer = nil
	a.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Log.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}

	for _, eventType := range appEvents {
		a.eventBus.Unsubscribe(eventType, a)
	}
	a.eventBus.Wait()

	if a.storage != nil {
		return a.storage.Close()
	}
	return nil
}
