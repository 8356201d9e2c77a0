// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package reply

import (
	"slices"
	"strings"
	"testing"

	"src.bluestatic.org/mailresponder/pkg/body"
	"src.bluestatic.org/mailresponder/pkg/inbox"
)

const originalRaw = "From: kim@example.com\r\nSubject: leave\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nPlease   approve.\r\n"

func newTestComposer(t *testing.T, c Config) *Composer {
	t.Helper()
	if c.From == "" {
		c.From = "assistant@example.com"
	}
	comp, err := NewComposer(c, body.NewNormalizer(nil, "", nil))
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	return comp
}

func TestComposeSubject(t *testing.T) {
	c := newTestComposer(t, Config{})
	cases := []struct {
		subject, want string
	}{
		{"휴가 신청", "Re: 휴가 신청"},
		{"Re: 휴가 신청", "Re: 휴가 신청"},
		{"re: lowercase", "Re: re: lowercase"},
		{"", "Re: "},
		{"Re:tight", "Re:tight"},
	}
	for i, tc := range cases {
		out := c.Compose(inbox.MessageHandle{Subject: tc.subject}, nil, "ok")
		if out.Subject != tc.want {
			t.Errorf("Case #%d: expected subject %q, got %q", i, tc.want, out.Subject)
		}
		// Replying to the reply keeps the subject stable.
		again := c.Compose(inbox.MessageHandle{Subject: out.Subject}, nil, "ok")
		if again.Subject != out.Subject {
			t.Errorf("Case #%d: expected stable subject %q, got %q", i, out.Subject, again.Subject)
		}
	}

	c = newTestComposer(t, Config{SubjectPrefix: "답장:"})
	if want, got := "답장: 회의", c.Compose(inbox.MessageHandle{Subject: "회의"}, nil, "").Subject; want != got {
		t.Errorf("Expected subject %q, got %q", want, got)
	}
}

func TestComposeThreadHeaders(t *testing.T) {
	c := newTestComposer(t, Config{})

	out := c.Compose(inbox.MessageHandle{MessageID: "abc@mail.example.com"}, nil, "")
	if want, got := "abc@mail.example.com", out.InReplyTo; want != got {
		t.Errorf("Expected In-Reply-To %q, got %q", want, got)
	}
	if want, got := []string{"abc@mail.example.com"}, out.References; !slices.Equal(want, got) {
		t.Errorf("Expected References %v, got %v", want, got)
	}

	out = c.Compose(inbox.MessageHandle{InReplyTo: "other@example.com"}, nil, "")
	if out.InReplyTo != "" || out.References != nil {
		t.Errorf("Expected no thread headers without a Message-ID, got %q %v", out.InReplyTo, out.References)
	}
}

func TestRecipientAddress(t *testing.T) {
	cases := []struct {
		sender, want string
	}{
		{"김철수 <kim@example.com>", "kim@example.com"},
		{"<bare@example.com>", "bare@example.com"},
		{"plain@example.com", "plain@example.com"},
		{"Broken <no-close@example.com", "Broken <no-close@example.com"},
		{"", ""},
	}
	for i, c := range cases {
		if got := RecipientAddress(c.sender); got != c.want {
			t.Errorf("Case #%d: expected %q, got %q", i, c.want, got)
		}
	}
}

func TestComposeBody(t *testing.T) {
	c := newTestComposer(t, Config{})
	h := inbox.MessageHandle{
		Subject:    "leave",
		Sender:     "김철수 <kim@example.com>",
		DateHeader: "Mon, 02 Jun 2025 09:30:00 +0900",
	}
	out := c.Compose(h, []byte(originalRaw), "Approved.")

	want := "Approved.\n\n\n\n\n" +
		"-----Original Message-----\n" +
		"From: 김철수 <kim@example.com>\n" +
		"To: assistant@example.com\n" +
		"Sent: Mon, 02 Jun 2025 09:30:00 +0900\n" +
		"Subject: leave\n" +
		"\n" +
		"Please approve."
	if out.Body != want {
		t.Errorf("Expected body:\n%s\ngot:\n%s", want, out.Body)
	}
	if want, got := "kim@example.com", out.To; want != got {
		t.Errorf("Expected recipient %q, got %q", want, got)
	}
	if want, got := "assistant@example.com", out.From; want != got {
		t.Errorf("Expected sender %q, got %q", want, got)
	}
}

func TestComposeCustomQuote(t *testing.T) {
	c := newTestComposer(t, Config{QuoteTemplate: "\n\n> {{.Sender}} wrote:\n{{.Body}}"})
	out := c.Compose(inbox.MessageHandle{Sender: "kim@example.com"}, []byte("not a message"), "Hi")
	if want, got := "Hi\n\n> kim@example.com wrote:\n"+body.DefaultPlaceholder, out.Body; want != got {
		t.Errorf("Expected body %q, got %q", want, got)
	}
}

func TestInvalidComposerConfig(t *testing.T) {
	n := body.NewNormalizer(nil, "", nil)
	configs := []Config{
		{},
		{From: "a@example.com", QuoteTemplate: "{{.Sender"},
		{From: "a@example.com", QuoteTemplate: "{{.NoSuchField}}"},
	}
	for i, cfg := range configs {
		if _, err := NewComposer(cfg, n); err == nil {
			t.Errorf("Expected error for config #%d: %#v", i, cfg)
		}
	}
	if _, err := ParseQuoteTemplate(strings.Repeat("{{.Body}}", 2)); err != nil {
		t.Errorf("Expected valid template, got %v", err)
	}
}
