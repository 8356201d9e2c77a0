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
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
)

const inboxName = "INBOX"

type imapMailbox struct {
	c   Config
	log *zap.Logger

	// tlsConfig, if set, is the base client TLS configuration.
	tlsConfig *tls.Config
}

// NewIMAP returns a Mailbox that reads the INBOX of an IMAP4rev1 server. With
// UseTLS the connection uses implicit TLS, otherwise STARTTLS is required.
func NewIMAP(config Config, log *zap.Logger) Mailbox {
	return &imapMailbox{
		c:   config,
		log: log.With(zap.String("imap", config.ServerAddr)),
	}
}

func (m *imapMailbox) Connect(ctx context.Context) (Session, error) {
	s := &imapSession{c: m.c, log: m.log, tlsConfig: m.tlsConfig}
	if err := s.connect(ctx); err != nil {
		return nil, connectError(err)
	}
	return s, nil
}

type imapSession struct {
	c         Config
	log       *zap.Logger
	tlsConfig *tls.Config

	client *imapclient.Client
}

func (s *imapSession) connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	host, _, err := net.SplitHostPort(s.c.ServerAddr)
	if err != nil {
		return fmt.Errorf("Invalid ServerAddr: %w", err)
	}
	tlsConfig := &tls.Config{}
	if s.tlsConfig != nil {
		tlsConfig = s.tlsConfig.Clone()
	}
	tlsConfig.ServerName = host
	opts := &imapclient.Options{TLSConfig: tlsConfig}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var client *imapclient.Client
	if s.c.UseTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: opts.TLSConfig}
		nc, err := td.DialContext(ctx, "tcp", s.c.ServerAddr)
		if err != nil {
			return fmt.Errorf("Failed to dial: %w", err)
		}
		client = imapclient.New(nc, opts)
	} else {
		nc, err := dialer.DialContext(ctx, "tcp", s.c.ServerAddr)
		if err != nil {
			return fmt.Errorf("Failed to dial: %w", err)
		}
		client, err = imapclient.NewStartTLS(nc, opts)
		if err != nil {
			nc.Close()
			return fmt.Errorf("Failed to STARTTLS: %w", err)
		}
	}

	if err := client.Login(s.c.Email, s.c.Password).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("Failed to log in: %w", err)
	}
	if _, err := client.Select(inboxName, nil).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("Failed to select %s: %w", inboxName, err)
	}

	s.log.Info("Opened mailbox")
	s.client = client
	return nil
}

// drop discards a client after a transport error so the next list redials.
func (s *imapSession) drop() {
	if s.client == nil {
		return
	}
	s.client.Close()
	s.client = nil
}

func (s *imapSession) ListIdentifiers() ([]ID, error) {
	if err := s.connect(context.Background()); err != nil {
		return nil, transportError("reconnect", err)
	}

	// Selecting again refreshes the message list on servers that only
	// report new mail in response to a command.
	if _, err := s.client.Select(inboxName, nil).Wait(); err != nil {
		s.drop()
		return nil, transportError("select", err)
	}
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		s.drop()
		return nil, transportError("search", err)
	}
	return uidsToIDs(data.AllUIDs()), nil
}

func (s *imapSession) FetchRaw(id ID) ([]byte, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, transportError("fetch", errNotConnected)
	}

	section := &imap.FetchItemBodySection{Peek: true}
	cmd := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			s.drop()
			return nil, transportError("fetch", err)
		}
		return nil, fmt.Errorf("%w: UID %d", ErrNotFound, uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		s.drop()
		return nil, transportError("fetch", err)
	}
	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("%w: UID %d has no body", ErrNotFound, uid)
	}
	if err := cmd.Close(); err != nil {
		s.drop()
		return nil, transportError("fetch", err)
	}
	return raw, nil
}

func (s *imapSession) MarkRead(id ID) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if s.client == nil {
		return transportError("store", errNotConnected)
	}
	err = s.client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		s.drop()
		return transportError("store", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if s.client == nil {
		return errNotConnected
	}
	err := s.client.Logout().Wait()
	s.client.Close()
	s.client = nil
	return err
}

func uidsToIDs(uids []imap.UID) []ID {
	ids := make([]ID, len(uids))
	for i, uid := range uids {
		ids[i] = ID(strconv.FormatUint(uint64(uid), 10))
	}
	return ids
}

func parseUID(id ID) (imap.UID, error) {
	uid, err := strconv.ParseUint(string(id), 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("%w: invalid UID %q", ErrNotFound, id)
	}
	return imap.UID(uid), nil
}
