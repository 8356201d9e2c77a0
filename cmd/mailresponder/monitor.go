// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"src.bluestatic.org/mailresponder/pkg/body"
	"src.bluestatic.org/mailresponder/pkg/dispatch"
	"src.bluestatic.org/mailresponder/pkg/gmail"
	"src.bluestatic.org/mailresponder/pkg/inbox"
	"src.bluestatic.org/mailresponder/pkg/mailbox"
	"src.bluestatic.org/mailresponder/pkg/reply"
	"src.bluestatic.org/mailresponder/pkg/responder"
	"src.bluestatic.org/mailresponder/pkg/smtp"

	"go.uber.org/zap"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Monitor polls a mailbox and answers each newly arrived message. All work
// happens on the goroutine that calls Run.
type Monitor struct {
	log      *zap.Logger
	interval time.Duration

	mbox       mailbox.Mailbox
	normalizer *body.Normalizer
	splitter   body.Splitter
	responder  responder.Responder
	composer   *reply.Composer
	transport  dispatch.Transport
	dispatcher *dispatch.Dispatcher

	cursor inbox.Cursor
	state  atomic.Int32
}

// NewMonitor assembles the pipeline described by config. The gmail transport
// starts its OAuth code server, which runs until ctx is done.
func NewMonitor(ctx context.Context, config *Config, log *zap.Logger) (*Monitor, error) {
	log = log.With(zap.String("mailbox", config.Mailbox.LogDescription()),
		zap.String("transport", config.Transport.LogDescription()))

	mbox, err := newMailbox(config.Mailbox, log)
	if err != nil {
		return nil, err
	}
	transport, err := newTransport(ctx, config, log)
	if err != nil {
		return nil, err
	}
	r, err := newResponder(config.Responder, log)
	if err != nil {
		return nil, err
	}

	normalizer := body.NewNormalizer(nil, config.Reply.DecodePlaceholder, log)
	composer, err := reply.NewComposer(reply.Config{
		From:          config.Mailbox.Email,
		SubjectPrefix: config.Reply.SubjectPrefix,
		QuoteTemplate: config.Reply.QuoteTemplate,
	}, normalizer)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		log:        log,
		interval:   time.Duration(config.PollIntervalSeconds) * time.Second,
		mbox:       mbox,
		normalizer: normalizer,
		splitter:   body.NewSplitter(config.Reply.ThreadMarker),
		responder:  r,
		composer:   composer,
		transport:  transport,
		dispatcher: dispatch.New(transport, config.RepliesPerMinute, log),
	}, nil
}

func newMailbox(c ServerConfig, log *zap.Logger) (mailbox.Mailbox, error) {
	mc := mailbox.Config{
		ServerAddr: c.ServerAddr,
		UseTLS:     c.UseTLS,
		Email:      c.Email,
		Password:   c.Password,
	}
	switch c.Type {
	case ServerTypeIMAP:
		return mailbox.NewIMAP(mc, log), nil
	case ServerTypePOP3:
		return mailbox.NewPOP3(mc, log), nil
	}
	return nil, fmt.Errorf("Unsupported mailbox type %q", c.Type)
}

func newTransport(ctx context.Context, config *Config, log *zap.Logger) (dispatch.Transport, error) {
	c := config.Transport
	switch c.Type {
	case ServerTypeSMTP:
		return smtp.NewTransport(smtp.Config{
			ServerAddr: c.ServerAddr,
			UseTLS:     c.UseTLS,
			Username:   c.Email,
			Password:   c.Password,
		}, log), nil
	case ServerTypeGmail:
		o2c, err := gmail.LoadClientConfig(config.OAuthServer.CredentialsPath)
		if err != nil {
			return nil, err
		}
		auth := gmail.NewCodeServer(config.OAuthServer, o2c, log)
		auth.Run(ctx)
		return gmail.NewTransport(c.Email, auth, log), nil
	}
	return nil, fmt.Errorf("Unsupported transport type %q", c.Type)
}

func newResponder(c ResponderConfig, log *zap.Logger) (responder.Responder, error) {
	var r responder.Responder
	switch c.Type {
	case ResponderTypeOpenAI:
		o, err := responder.NewOpenAI(responder.OpenAIConfig{
			BaseURL:      c.BaseURL,
			APIKey:       c.APIKey,
			Model:        c.Model,
			MaxTokens:    c.MaxTokens,
			Temperature:  c.Temperature,
			Timeout:      time.Duration(c.TimeoutSeconds) * time.Second,
			SystemPrompt: c.SystemPrompt,
			ThreadPrompt: c.ThreadPrompt,
			SinglePrompt: c.SinglePrompt,
		})
		if err != nil {
			return nil, err
		}
		r = o
	case ResponderTypeStatic:
		r = responder.Static(c.StaticText)
	default:
		return nil, fmt.Errorf("Unsupported responder type %q", c.Type)
	}
	if c.FallbackText != "" {
		r = responder.WithFallback(r, c.FallbackText, log)
	}
	return r, nil
}

// authorizer is implemented by transports that need interactive
// authorization before the first delivery.
type authorizer interface {
	Authorize(context.Context) error
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	m.log.Debug("Monitor state", zap.Stringer("state", s))
}

// Run connects to the mailbox, authorizes the transport and polls the mailbox
// every interval until ctx is cancelled. A failure during startup is returned;
// after that, Run only returns once ctx is done. A message whose reply is
// being generated or delivered when ctx is cancelled is finished first.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.setState(StateStopped)

	session, err := m.mbox.Connect(ctx)
	if err != nil {
		m.log.Error("Failed to start monitor", zap.Error(err))
		return fmt.Errorf("Failed to connect to mailbox: %w", err)
	}
	m.setState(StateConnected)
	defer func() {
		if err := session.Close(); err != nil {
			m.log.Warn("Failed to close mailbox session", zap.Error(err))
		}
		m.log.Info("Monitor stopping")
	}()

	if a, ok := m.transport.(authorizer); ok {
		if err := a.Authorize(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Error("Failed to authorize transport", zap.Error(err))
			return fmt.Errorf("Failed to authorize transport: %w", err)
		}
	}

	m.setState(StatePolling)
	for {
		m.runOnce(ctx, session)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.interval):
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, session mailbox.Session) {
	ids, err := session.ListIdentifiers()
	if err != nil {
		m.log.Warn("Failed to list messages", zap.Error(err))
		return
	}

	delta := m.cursor.ComputeDelta(ids)
	last, _ := m.cursor.LastSeen()
	m.log.Debug("Polled for messages", zap.Int("count", len(ids)), zap.Int("new", len(delta)),
		zap.String("lastSeen", string(last)))

	fetcher := inbox.NewFetcher(session)
	for i, id := range delta {
		if ctx.Err() != nil {
			m.log.Info("Stopping with messages unprocessed", zap.Int("skipped", len(delta)-i))
			return
		}
		m.processMessage(ctx, session, fetcher, id)
	}
}

func (m *Monitor) processMessage(ctx context.Context, session mailbox.Session, fetcher *inbox.Fetcher, id mailbox.ID) {
	log := m.log.With(zap.String("id", string(id)))

	msg, err := fetcher.Fetch(id)
	if err != nil {
		logSkip(log, "Failed to fetch message", err)
		return
	}
	log = log.With(zap.String("subject", msg.Handle.Subject), zap.String("sender", msg.Handle.Sender))

	if err := session.MarkRead(id); err != nil {
		logSkip(log, "Failed to mark message read", err)
		return
	}

	b := body.Parse(msg.Raw, m.normalizer, m.splitter)
	text, err := m.responder.Generate(context.WithoutCancel(ctx), responder.Request{
		Subject:      msg.Handle.Subject,
		Sender:       msg.Handle.Sender,
		CurrentTurn:  b.CurrentTurn,
		PriorHistory: b.PriorHistory,
	})
	if err != nil {
		log.Error("Failed to generate response", zap.Error(err))
		return
	}

	out := m.composer.Compose(msg.Handle, msg.Raw, text)
	if err := m.dispatcher.Send(ctx, out); err != nil {
		log.Error("Failed to deliver reply", zap.String("to", out.To), zap.Error(err))
		return
	}
	log.Info("Sent reply", zap.String("to", out.To))
}

// logSkip logs a message that is skipped because of a mailbox failure.
func logSkip(log *zap.Logger, msg string, err error) {
	if errors.Is(err, mailbox.ErrNotFound) {
		log.Info(msg, zap.Error(err))
	} else {
		log.Warn(msg, zap.Error(err))
	}
}
