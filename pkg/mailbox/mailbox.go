// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package mailbox provides stateful sessions against an inbound mail server.
// Implementations exist for IMAP and POP3.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ID is a mailbox-assigned message identifier. IDs are opaque and only
// compared for equality; a Session lists them in ascending arrival order.
type ID string

var (
	// ErrConnect is returned when a session cannot be established at all.
	ErrConnect = errors.New("mailbox connect failed")
	// ErrTransport marks transient failures of an established session.
	ErrTransport = errors.New("mailbox transport failure")
	// ErrNotFound is returned when an ID vanished from the mailbox.
	ErrNotFound = errors.New("message not found")

	errNotConnected = errors.New("Session is not connected")
)

type Mailbox interface {
	// Connect dials and authenticates, returning a session bound to the inbox.
	Connect(context.Context) (Session, error)
}

// Session is a logged-in mailbox. Sessions are *not* goroutine safe.
type Session interface {
	// ListIdentifiers returns every message ID currently in the inbox, in
	// ascending arrival order.
	ListIdentifiers() ([]ID, error)
	// FetchRaw returns the full RFC 5322 message without altering its state.
	FetchRaw(ID) ([]byte, error)
	// MarkRead flags the message as seen.
	MarkRead(ID) error
	// Close releases the session.
	Close() error
}

// Config describes how to reach and log into the server.
type Config struct {
	ServerAddr string
	UseTLS     bool
	Email      string
	Password   string
}

const dialTimeout = 30 * time.Second

func connectError(err error) error {
	return fmt.Errorf("%w: %w", ErrConnect, err)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
