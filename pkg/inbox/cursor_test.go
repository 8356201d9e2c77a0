// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package inbox

import (
	"slices"
	"strconv"
	"testing"

	"src.bluestatic.org/mailresponder/pkg/mailbox"
)

func ids(s ...string) []mailbox.ID {
	r := make([]mailbox.ID, len(s))
	for i, v := range s {
		r[i] = mailbox.ID(v)
	}
	return r
}

func TestCursorColdStart(t *testing.T) {
	var c Cursor
	if _, set := c.LastSeen(); set {
		t.Errorf("Expected zero Cursor to be unset")
	}

	if delta := c.ComputeDelta(ids("1", "2", "3")); len(delta) != 0 {
		t.Errorf("Expected empty delta on first call, got %v", delta)
	}
	if last, set := c.LastSeen(); !set || last != "3" {
		t.Errorf("Expected cursor at 3, got %q (set=%v)", last, set)
	}

	if want, got := ids("4", "5"), c.ComputeDelta(ids("1", "2", "3", "4", "5")); !slices.Equal(want, got) {
		t.Errorf("Expected delta %v, got %v", want, got)
	}
}

func TestCursorEmptyMailbox(t *testing.T) {
	var c Cursor
	if delta := c.ComputeDelta(nil); len(delta) != 0 {
		t.Errorf("Expected empty delta, got %v", delta)
	}
	if _, set := c.LastSeen(); set {
		t.Errorf("Expected cursor to stay unset on an empty mailbox")
	}

	// The first non-empty listing is still the cold start baseline.
	if delta := c.ComputeDelta(ids("7")); len(delta) != 0 {
		t.Errorf("Expected empty delta, got %v", delta)
	}

	if delta := c.ComputeDelta(nil); len(delta) != 0 {
		t.Errorf("Expected empty delta, got %v", delta)
	}
	if last, _ := c.LastSeen(); last != "7" {
		t.Errorf("Expected cursor to remain at 7, got %q", last)
	}
}

func TestCursorNoNewMail(t *testing.T) {
	var c Cursor
	c.ComputeDelta(ids("a", "b"))
	if delta := c.ComputeDelta(ids("a", "b")); len(delta) != 0 {
		t.Errorf("Expected empty delta, got %v", delta)
	}
	// Older messages deleted, newest unchanged.
	if delta := c.ComputeDelta(ids("b")); len(delta) != 0 {
		t.Errorf("Expected empty delta, got %v", delta)
	}
}

func TestCursorVanishedIdentifier(t *testing.T) {
	var c Cursor
	c.ComputeDelta(ids("1", "2", "3"))

	// 3 was deleted and several messages arrived; only the newest is returned.
	if want, got := ids("6"), c.ComputeDelta(ids("1", "2", "4", "5", "6")); !slices.Equal(want, got) {
		t.Errorf("Expected delta %v, got %v", want, got)
	}
	if last, _ := c.LastSeen(); last != "6" {
		t.Errorf("Expected cursor at 6, got %q", last)
	}
}

func TestCursorDeltaMonotonicity(t *testing.T) {
	var all []mailbox.ID
	for i := 1; i <= 40; i++ {
		all = append(all, mailbox.ID(strconv.Itoa(i)))
	}

	// Inputs are growing prefixes of the same listing, including repeats.
	cuts := []int{5, 5, 6, 9, 9, 17, 30, 31, 40, 40}

	var c Cursor
	var union []mailbox.ID
	for _, n := range cuts {
		union = append(union, c.ComputeDelta(all[:n])...)
	}

	if want := all[cuts[0]:]; !slices.Equal(want, union) {
		t.Errorf("Expected union of deltas %v, got %v", want, union)
	}
}

func TestCursorDeltaIsACopy(t *testing.T) {
	var c Cursor
	c.ComputeDelta(ids("1"))
	input := ids("1", "2", "3")
	delta := c.ComputeDelta(input)
	delta[0] = "x"
	if input[1] != "2" {
		t.Errorf("Delta aliases the input listing")
	}
}
