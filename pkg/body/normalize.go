// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package body turns raw inbound messages into clean text and separates the
// sender's newest turn from the quoted conversation history.
package body

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

const DefaultPlaceholder = "The message body could not be read."

// ReflowRule breaks a run-on signature line before a recognized field. Pattern
// must contain a named group `field`; a line break is inserted at the start of
// that group unless it already begins a line.
type ReflowRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules are the contact-field and organizational-role rules, applied in
// order.
var DefaultRules = []ReflowRule{
	{"telephone", regexp.MustCompile(`\b(?P<field>(?:Telephone|Tel|Phone|Fax)\.?:?[ \t]*\+?\d)`)},
	{"mobile", regexp.MustCompile(`\b(?P<field>Mobile:?[ \t]*\+?\d)`)},
	{"email", regexp.MustCompile(`\b(?P<field>E-?mail:?[ \t]*[\w.+-]+@)`)},
	{"team", regexp.MustCompile(`(?P<field>[가-힣]+\d*팀)`)},
	{"role", regexp.MustCompile(`(?P<field>[가-힣]+(?:전문원|과장|부장))`)},
}

func (r ReflowRule) apply(s string) string {
	fi := r.Pattern.SubexpIndex("field")
	if fi < 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range r.Pattern.FindAllStringSubmatchIndex(s, -1) {
		start := m[2*fi]
		if start < 0 {
			continue
		}
		lineStart := strings.LastIndexByte(s[:start], '\n') + 1
		if strings.TrimFunc(s[lineStart:start], isHSpace) == "" {
			continue
		}
		b.WriteString(strings.TrimRightFunc(s[last:start], isHSpace))
		b.WriteByte('\n')
		last = start
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// isHSpace reports horizontal whitespace: tab and the Unicode space
// separators, including NBSP and the ideographic space.
func isHSpace(r rune) bool {
	return r == '\t' || unicode.Is(unicode.Zs, r)
}

var (
	hspaceRun  = regexp.MustCompile(`[\t\p{Zs}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Normalizer cleans message bodies. The zero value is not usable; use
// NewNormalizer.
type Normalizer struct {
	rules       []ReflowRule
	placeholder string
	log         *zap.Logger
}

// NewNormalizer creates a Normalizer. A nil rules slice selects DefaultRules
// and an empty placeholder selects DefaultPlaceholder.
func NewNormalizer(rules []ReflowRule, placeholder string, log *zap.Logger) *Normalizer {
	if rules == nil {
		rules = DefaultRules
	}
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{rules: rules, placeholder: placeholder, log: log}
}

func (n *Normalizer) Placeholder() string {
	return n.placeholder
}

// Normalize decodes and cleans a raw RFC 5322 message. It never fails: if the
// entity cannot be decoded, the placeholder text is returned.
func (n *Normalizer) Normalize(raw []byte) string {
	text, err := Decode(raw)
	if err != nil {
		n.log.Warn("Substituting placeholder for undecodable body", zap.Error(err))
		return n.placeholder
	}
	return n.Clean(text)
}

// Clean normalizes already-decoded text. It is idempotent.
func (n *Normalizer) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(hspaceRun.ReplaceAllString(line, " "), " ")
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	for _, r := range n.rules {
		text = r.apply(text)
	}
	return strings.TrimSpace(text)
}
