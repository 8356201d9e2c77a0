// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package pop3 implements the client side of the Post Office Protocol,
// version 3 (RFC 1939), including the optional UIDL command.
package pop3

import "io"

// Message is a single entry of a maildrop listing.
type Message interface {
	// UniqueID is the server-assigned UIDL string, which stays stable across
	// sessions. It is empty if the server does not support UIDL.
	UniqueID() string
	// ID is the message number, which is only valid for the current session.
	ID() int
	Size() int
}

// Mailbox is an open maildrop in the TRANSACTION state.
type Mailbox interface {
	ListMessages() ([]Message, error)
	// GetMessage returns nil if the message number is unknown to the server.
	GetMessage(int) Message
	Retrieve(Message) (io.ReadCloser, error)
	Close() error
}

// PostOffice is a connected server in the AUTHORIZATION state.
type PostOffice interface {
	Name() string
	OpenMailbox(user, pass string) (Mailbox, error)
}
