// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package reply

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func TestRender(t *testing.T) {
	out := Outbound{
		From:       "assistant@example.com",
		To:         "kim@example.com",
		Subject:    "Re: 휴가 신청",
		Body:       "승인되었습니다.\n\n-----Original Message-----\nFrom: kim@example.com",
		InReplyTo:  "abc@mail.example.com",
		References: []string{"abc@mail.example.com"},
	}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	raw, err := out.Render(now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Failed to parse rendered message: %v", err)
	}
	defer mr.Close()

	if subject, _ := mr.Header.Subject(); subject != out.Subject {
		t.Errorf("Expected subject %q, got %q", out.Subject, subject)
	}
	if date, _ := mr.Header.Date(); !date.Equal(now) {
		t.Errorf("Expected date %v, got %v", now, date)
	}
	if ids, _ := mr.Header.MsgIDList("In-Reply-To"); !slices.Equal(ids, []string{"abc@mail.example.com"}) {
		t.Errorf("Expected In-Reply-To, got %v", ids)
	}
	if ids, _ := mr.Header.MsgIDList("References"); !slices.Equal(ids, out.References) {
		t.Errorf("Expected References %v, got %v", out.References, ids)
	}
	if id, _ := mr.Header.MessageID(); !strings.HasSuffix(id, "@example.com") {
		t.Errorf("Expected Message-ID on the sender's domain, got %q", id)
	}
	if to, _ := mr.Header.AddressList("To"); len(to) != 1 || to[0].Address != "kim@example.com" {
		t.Errorf("Expected To kim@example.com, got %v", to)
	}

	p, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	b, err := io.ReadAll(p.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got := strings.ReplaceAll(string(b), "\r\n", "\n"); got != out.Body {
		t.Errorf("Expected body %q, got %q", out.Body, got)
	}
}

func TestRenderWithoutThreadHeaders(t *testing.T) {
	out := Outbound{From: "me", To: "you@example.com", Subject: "Re: x", Body: "hi"}
	raw, err := out.Render(time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.Contains(raw, []byte("In-Reply-To")) || bytes.Contains(raw, []byte("References")) {
		t.Errorf("Expected no thread headers in:\n%s", raw)
	}
	if !bytes.Contains(raw, []byte("@localhost>")) {
		t.Errorf("Expected a localhost Message-ID in:\n%s", raw)
	}

	second, _ := out.Render(time.Now())
	first, _ := mail.CreateReader(bytes.NewReader(raw))
	again, _ := mail.CreateReader(bytes.NewReader(second))
	id1, _ := first.Header.MessageID()
	id2, _ := again.Header.MessageID()
	if id1 == id2 {
		t.Errorf("Expected a fresh Message-ID per render, got %q twice", id1)
	}
}
