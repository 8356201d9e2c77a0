// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package inbox detects newly arrived messages and loads their headers.
package inbox

import (
	"time"

	"src.bluestatic.org/mailresponder/pkg/mailbox"
)

// MessageHandle is the header metadata of one inbound message. Empty MessageID
// and InReplyTo fields mean the header was absent.
type MessageHandle struct {
	ID      mailbox.ID
	Subject string
	// Sender is the decoded From header, e.g. `Jane Doe <jane@example.com>`.
	Sender string
	// Date is the parsed Date header, or the zero time if it was missing or
	// malformed. DateHeader holds the header exactly as received.
	Date       time.Time
	DateHeader string

	MessageID  string
	InReplyTo  string
	References []string
}

// Message is a fetched message: its handle and the raw RFC 5322 bytes.
type Message struct {
	Handle MessageHandle
	Raw    []byte
}
