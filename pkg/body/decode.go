// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package body

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

// ErrDecode is returned when a message entity cannot be reduced to text.
var ErrDecode = errors.New("body decode failed")

var (
	htmlPolicy = bluemonday.StrictPolicy()

	// Block-level boundaries that should survive tag stripping as line breaks.
	htmlBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>|</div\s*>|</tr\s*>|</li\s*>`)
)

// Decode reduces an RFC 5322 message to text. Transfer encodings and
// character sets are decoded, every inline text/plain part is concatenated in
// order, and markup entities are unescaped. A message with no text/plain part
// falls back to its HTML parts with all markup stripped.
func Decode(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer mr.Close()

	var plain, markup strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("%w: Failed to read part: %w", ErrDecode, err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("%w: Failed to decode part: %w", ErrDecode, err)
		}

		switch mediaType(h) {
		case "text/plain":
			appendPart(&plain, b)
		case "text/html":
			appendPart(&markup, b)
		}
	}

	text := plain.String()
	if text == "" && markup.Len() > 0 {
		text = stripHTML(markup.String())
	}
	return html.UnescapeString(text), nil
}

func mediaType(h *mail.InlineHeader) string {
	if h.Get("Content-Type") == "" {
		return "text/plain"
	}
	t, _, err := h.ContentType()
	if err != nil {
		return ""
	}
	return t
}

func appendPart(sb *strings.Builder, b []byte) {
	if s := sb.String(); s != "" && !strings.HasSuffix(s, "\n") {
		sb.WriteByte('\n')
	}
	sb.Write(b)
}

func stripHTML(s string) string {
	s = htmlBreaks.ReplaceAllStringFunc(s, func(tag string) string {
		return tag + "\n"
	})
	return htmlPolicy.Sanitize(s)
}
