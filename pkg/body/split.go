// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package body

import "strings"

const DefaultThreadMarker = "-----Original Message-----"

// Splitter separates the current turn of a reply from the quoted original.
type Splitter struct {
	Marker string
}

func NewSplitter(marker string) Splitter {
	if marker == "" {
		marker = DefaultThreadMarker
	}
	return Splitter{Marker: marker}
}

// Split cuts text at the first occurrence of the marker. The history keeps the
// marker itself; later markers stay inside the history.
func (s Splitter) Split(text string) (current, history string) {
	before, after, found := strings.Cut(text, s.Marker)
	if !found {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(s.Marker + after)
}

// MessageBody is the text of one inbound message.
type MessageBody struct {
	// Raw is the full normalized body.
	Raw          string
	CurrentTurn  string
	PriorHistory string
}

// Parse normalizes a raw message and splits the result.
func Parse(raw []byte, n *Normalizer, s Splitter) MessageBody {
	text := n.Normalize(raw)
	current, history := s.Split(text)
	return MessageBody{
		Raw:          text,
		CurrentTurn:  current,
		PriorHistory: history,
	}
}
