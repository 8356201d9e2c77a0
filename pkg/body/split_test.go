// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package body

import (
	"testing"
)

func TestSplit(t *testing.T) {
	s := NewSplitter("")
	cases := []struct {
		in, current, history string
	}{
		{"hello world", "hello world", ""},
		{"new question\n-----Original Message-----\nold stuff", "new question", "-----Original Message-----\nold stuff"},
		{"  padded  \n\n", "padded", ""},
		{"-----Original Message-----\nonly history", "", "-----Original Message-----\nonly history"},
		{
			"reply\n-----Original Message-----\nfirst\n-----Original Message-----\nsecond",
			"reply",
			"-----Original Message-----\nfirst\n-----Original Message-----\nsecond",
		},
		{"", "", ""},
	}
	for i, c := range cases {
		current, history := s.Split(c.in)
		if current != c.current || history != c.history {
			t.Errorf("Case #%d: expected (%q, %q), got (%q, %q)", i, c.current, c.history, current, history)
		}
	}
}

func TestSplitCustomMarker(t *testing.T) {
	s := NewSplitter("--- Forwarded ---")
	current, history := s.Split("see below --- Forwarded --- details")
	if want, got := "see below", current; want != got {
		t.Errorf("Expected current %q, got %q", want, got)
	}
	if want, got := "--- Forwarded --- details", history; want != got {
		t.Errorf("Expected history %q, got %q", want, got)
	}
}

func TestSplitIdempotence(t *testing.T) {
	n := NewNormalizer(nil, "", nil)
	s := NewSplitter("")
	inputs := []string{
		"hello world",
		"Please approve  my leave.\r\n\r\n\r\n김철수 전산2팀 Tel 02-123-4567\r\n-----Original Message-----\r\nFrom: x",
		"   -----Original Message-----   ",
		"Thanks Mobile 010-1111-2222 Email a@b.com -----Original Message----- older",
	}
	for i, in := range inputs {
		current, _ := s.Split(n.Clean(in))
		if again := n.Clean(current); again != current {
			t.Errorf("Case #%d: current turn changed on renormalize: %q -> %q", i, current, again)
		}
		if c2, h2 := s.Split(current); c2 != current || h2 != "" {
			t.Errorf("Case #%d: current turn split again into (%q, %q)", i, c2, h2)
		}
	}
}

func TestParse(t *testing.T) {
	raw := crlf(`From: kim@example.com
Subject: leave
Content-Type: text/plain; charset=utf-8

I would like  to take Friday off.

-----Original Message-----
From: Assistant
Subject: Re: leave

Which day?
`)
	b := Parse([]byte(raw), NewNormalizer(nil, "", nil), NewSplitter(""))
	if want, got := "I would like to take Friday off.", b.CurrentTurn; want != got {
		t.Errorf("Expected current turn %q, got %q", want, got)
	}
	if want, got := "-----Original Message-----\nFrom: Assistant\nSubject: Re: leave\n\nWhich day?", b.PriorHistory; want != got {
		t.Errorf("Expected history %q, got %q", want, got)
	}
	if want, got := b.CurrentTurn+"\n\n"+b.PriorHistory, b.Raw; want != got {
		t.Errorf("Expected raw %q, got %q", want, got)
	}

	b = Parse([]byte("garbage\r\n\r\n"), NewNormalizer(nil, "", nil), NewSplitter(""))
	if b.CurrentTurn != DefaultPlaceholder || b.PriorHistory != "" {
		t.Errorf("Expected placeholder body, got %#v", b)
	}
}
