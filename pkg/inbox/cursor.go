// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package inbox

import (
	"slices"

	"src.bluestatic.org/mailresponder/pkg/mailbox"
)

// Cursor tracks the last message ID seen in an ordered mailbox. The zero value
// is an unset cursor. A Cursor is owned by a single poll loop and is not
// goroutine safe.
type Cursor struct {
	lastSeen mailbox.ID
	set      bool
}

// LastSeen returns the current position, and false if the cursor is unset.
func (c *Cursor) LastSeen() (mailbox.ID, bool) {
	return c.lastSeen, c.set
}

// ComputeDelta returns the IDs in `ids` that arrived after the last call and
// advances the cursor to the newest ID.
//
// The first call adopts the newest ID as the baseline and returns nothing, so
// mail that predates startup is never answered. If the previously seen ID has
// disappeared from the mailbox, only the newest ID is returned rather than
// replaying the whole listing.
func (c *Cursor) ComputeDelta(ids []mailbox.ID) []mailbox.ID {
	if len(ids) == 0 {
		return nil
	}
	latest := ids[len(ids)-1]

	var delta []mailbox.ID
	switch {
	case !c.set:
	case latest == c.lastSeen:
	default:
		if i := slices.Index(ids, c.lastSeen); i >= 0 {
			delta = slices.Clone(ids[i+1:])
		} else {
			delta = []mailbox.ID{latest}
		}
	}

	c.lastSeen = latest
	c.set = true
	return delta
}
