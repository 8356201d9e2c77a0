// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package inbox

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"src.bluestatic.org/mailresponder/pkg/mailbox"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Fetcher loads messages from a mailbox session.
type Fetcher struct {
	s mailbox.Session
}

func NewFetcher(s mailbox.Session) *Fetcher {
	return &Fetcher{s: s}
}

// Fetch retrieves one message and parses its headers. Errors from the
// session (mailbox.ErrNotFound, mailbox.ErrTransport) are returned as-is;
// there are no retries.
//
// A malformed header block is not fatal as long as a From header was read
// before the bad line: the message is returned with the fields parsed so far.
// Without a sender there is nobody to reply to, and the parse error is
// returned.
func (f *Fetcher) Fetch(id mailbox.ID) (Message, error) {
	raw, err := f.s.FetchRaw(id)
	if err != nil {
		return Message{}, err
	}
	h, err := ParseHandle(id, raw)
	if err != nil && h.Sender == "" {
		return Message{}, err
	}
	return Message{Handle: h, Raw: raw}, nil
}

// ParseHandle reads the header block of a raw message. Encoded words in the
// Subject and From headers are decoded; headers that fail to decode are kept
// verbatim. If the header block is malformed, the returned handle holds the
// fields that preceded the bad line along with the error.
func ParseHandle(id mailbox.ID, raw []byte) (MessageHandle, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		err = fmt.Errorf("Failed to parse headers of %s: %w", id, err)
	}
	h := mail.Header{Header: message.Header{Header: th}}

	handle := MessageHandle{
		ID:         id,
		Subject:    decodedText(h, "Subject"),
		Sender:     decodedText(h, "From"),
		DateHeader: h.Get("Date"),
	}
	if date, err := h.Date(); err == nil {
		handle.Date = date
	}
	if msgID, err := h.MessageID(); err == nil {
		handle.MessageID = msgID
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		handle.InReplyTo = ids[0]
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		handle.References = ids
	}
	return handle, err
}

func decodedText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		v = h.Get(key)
	}
	return strings.TrimSpace(v)
}
