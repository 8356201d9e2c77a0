// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"src.bluestatic.org/mailresponder/pkg/pop3"

	"go.uber.org/zap"
)

type pop3Mailbox struct {
	c   Config
	log *zap.Logger
}

// NewPOP3 returns a Mailbox backed by a POP3 maildrop. POP3 has no notion of
// a seen flag, so messages are left on the server and MarkRead only verifies
// that the message still exists.
func NewPOP3(config Config, log *zap.Logger) Mailbox {
	return &pop3Mailbox{
		c:   config,
		log: log.With(zap.String("pop3", config.ServerAddr)),
	}
}

func (m *pop3Mailbox) Connect(ctx context.Context) (Session, error) {
	s := &pop3Session{c: m.c, log: m.log}
	if err := s.connect(ctx); err != nil {
		return nil, connectError(err)
	}
	return s, nil
}

type pop3Session struct {
	c   Config
	log *zap.Logger

	po   pop3.PostOffice
	mbox pop3.Mailbox
	msgs map[ID]pop3.Message
}

func (s *pop3Session) connect(ctx context.Context) error {
	if s.po != nil && s.mbox != nil {
		return nil
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var nc net.Conn
	var err error
	if s.c.UseTLS {
		td := &tls.Dialer{NetDialer: dialer}
		nc, err = td.DialContext(ctx, "tcp", s.c.ServerAddr)
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", s.c.ServerAddr)
	}
	if err != nil {
		return err
	}

	po, err := pop3.Connect(nc, s.log)
	if err != nil {
		return err
	}
	mbox, err := po.OpenMailbox(s.c.Email, s.c.Password)
	if err != nil {
		nc.Close()
		return err
	}
	s.po = po
	s.mbox = mbox
	return nil
}

// ListIdentifiers reopens the maildrop, since a POP3 server only reports the
// messages present when the session was authenticated.
func (s *pop3Session) ListIdentifiers() ([]ID, error) {
	if s.mbox != nil {
		if err := s.Close(); err != nil {
			s.log.Warn("Failed to close maildrop", zap.Error(err))
		}
	}
	if err := s.connect(context.Background()); err != nil {
		return nil, transportError("reconnect", err)
	}

	pmsgs, err := s.mbox.ListMessages()
	if err != nil {
		return nil, transportError("list", err)
	}
	ids := make([]ID, 0, len(pmsgs))
	s.msgs = make(map[ID]pop3.Message, len(pmsgs))
	for _, pmsg := range pmsgs {
		uid := pmsg.UniqueID()
		if uid == "" {
			return nil, transportError("list", fmt.Errorf("Server does not support UIDL"))
		}
		id := ID(uid)
		ids = append(ids, id)
		s.msgs[id] = pmsg
	}
	return ids, nil
}

func (s *pop3Session) FetchRaw(id ID) ([]byte, error) {
	pmsg, ok := s.msgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.mbox == nil {
		return nil, transportError("retrieve", errNotConnected)
	}
	r, err := s.mbox.Retrieve(pmsg)
	if err != nil {
		return nil, transportError("retrieve", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, transportError("retrieve", err)
	}
	return raw, nil
}

// MarkRead confirms with the server that the message still exists.
func (s *pop3Session) MarkRead(id ID) error {
	pmsg, ok := s.msgs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.mbox == nil {
		return transportError("list", errNotConnected)
	}
	if s.mbox.GetMessage(pmsg.ID()) == nil {
		return fmt.Errorf("%w: %s is no longer on the server", ErrNotFound, id)
	}
	return nil
}

func (s *pop3Session) Close() error {
	if s.po == nil || s.mbox == nil {
		return errNotConnected
	}
	err := s.mbox.Close()
	s.po = nil
	s.mbox = nil
	return err
}
