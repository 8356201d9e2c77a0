// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package reply

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Recipients returns the envelope recipients of the reply.
func (o Outbound) Recipients() []string {
	return []string{o.To}
}

// Render serializes the reply as an RFC 5322 message dated now. Each call
// assigns a fresh Message-ID.
func (o Outbound) Render(now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	setAddress(&h, "From", o.From)
	setAddress(&h, "To", o.To)
	h.SetSubject(o.Subject)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(o.From))
	if o.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{o.InReplyTo})
	}
	if len(o.References) > 0 {
		h.SetMsgIDList("References", o.References)
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("Failed to create message: %w", err)
	}
	if _, err := w.Write([]byte(o.Body)); err != nil {
		w.Close()
		return nil, fmt.Errorf("Failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("Failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func setAddress(h *mail.Header, key, value string) {
	if addrs, err := mail.ParseAddressList(value); err == nil && len(addrs) > 0 {
		h.SetAddressList(key, addrs)
	} else {
		h.Set(key, value)
	}
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		if d := strings.Trim(addr[i+1:], "> "); d != "" {
			return d
		}
	}
	return "localhost"
}
