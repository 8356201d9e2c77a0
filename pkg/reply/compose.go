// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package reply builds threaded replies to inbound messages.
package reply

import (
	"fmt"
	"strings"
	"text/template"

	"src.bluestatic.org/mailresponder/pkg/body"
	"src.bluestatic.org/mailresponder/pkg/inbox"
)

const (
	DefaultSubjectPrefix = "Re:"

	DefaultQuoteTemplate = `




-----Original Message-----
From: {{.Sender}}
To: {{.To}}
Sent: {{.Date}}
Subject: {{.Subject}}

{{.Body}}`
)

// Config controls reply construction.
type Config struct {
	// From is the address of the responding mailbox.
	From string
	// SubjectPrefix is the reply marker. Empty selects DefaultSubjectPrefix.
	SubjectPrefix string
	// QuoteTemplate is a text/template rendered after the response text, with
	// the fields of QuoteData. Empty selects DefaultQuoteTemplate.
	QuoteTemplate string
}

// QuoteData is the input to the quote template.
type QuoteData struct {
	Sender  string
	To      string
	Date    string
	Subject string
	Body    string
}

// Outbound is a reply ready for dispatch.
type Outbound struct {
	From       string
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
}

type Composer struct {
	from   string
	prefix string
	quote  *template.Template
	n      *body.Normalizer
}

// NewComposer validates the configuration and parses the quote template. The
// Normalizer is used to clean the quoted original body.
func NewComposer(c Config, n *body.Normalizer) (*Composer, error) {
	if c.From == "" {
		return nil, fmt.Errorf("Missing From address")
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.QuoteTemplate == "" {
		c.QuoteTemplate = DefaultQuoteTemplate
	}
	tmpl, err := ParseQuoteTemplate(c.QuoteTemplate)
	if err != nil {
		return nil, err
	}
	return &Composer{
		from:   c.From,
		prefix: c.SubjectPrefix,
		quote:  tmpl,
		n:      n,
	}, nil
}

// ParseQuoteTemplate parses and trial-executes a quote template, so that field
// errors are reported at startup rather than per message.
func ParseQuoteTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("quote").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse quote template: %w", err)
	}
	if err := tmpl.Execute(&strings.Builder{}, QuoteData{}); err != nil {
		return nil, fmt.Errorf("Invalid quote template: %w", err)
	}
	return tmpl, nil
}

// Compose builds the reply to the message identified by h, whose raw content
// is raw. It performs no I/O.
func (c *Composer) Compose(h inbox.MessageHandle, raw []byte, response string) Outbound {
	out := Outbound{
		From:    c.from,
		To:      RecipientAddress(h.Sender),
		Subject: c.replySubject(h.Subject),
	}
	if h.MessageID != "" {
		out.InReplyTo = h.MessageID
		out.References = []string{h.MessageID}
	}

	var sb strings.Builder
	sb.WriteString(response)
	// The template was trial-executed against QuoteData in NewComposer.
	if err := c.quote.Execute(&sb, QuoteData{
		Sender:  h.Sender,
		To:      c.from,
		Date:    h.DateHeader,
		Subject: h.Subject,
		Body:    c.n.Normalize(raw),
	}); err != nil {
		sb.Reset()
		sb.WriteString(response)
	}
	out.Body = sb.String()
	return out
}

func (c *Composer) replySubject(subject string) string {
	if strings.HasPrefix(subject, c.prefix) {
		return subject
	}
	return c.prefix + " " + subject
}

// RecipientAddress returns the bracketed address of a `Name <addr>` sender, or
// the sender unchanged.
func RecipientAddress(sender string) string {
	_, rest, ok := strings.Cut(sender, "<")
	if !ok {
		return sender
	}
	addr, _, ok := strings.Cut(rest, ">")
	if !ok {
		return sender
	}
	return addr
}
