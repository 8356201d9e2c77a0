// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package responder generates the text of replies.
package responder

import (
	"context"

	"go.uber.org/zap"
)

// Request is the inbound message as seen by a Responder.
type Request struct {
	Subject      string
	Sender       string
	CurrentTurn  string
	PriorHistory string
}

type Responder interface {
	// Generate returns the reply text for req. Implementations must bound
	// their own latency.
	Generate(ctx context.Context, req Request) (string, error)
}

// Static replies with fixed text.
type Static string

func (s Static) Generate(context.Context, Request) (string, error) {
	return string(s), nil
}

type fallback struct {
	r    Responder
	text string
	log  *zap.Logger
}

// WithFallback wraps r so that a generation failure is logged and answered
// with text instead.
func WithFallback(r Responder, text string, log *zap.Logger) Responder {
	return &fallback{r: r, text: text, log: log}
}

func (f *fallback) Generate(ctx context.Context, req Request) (string, error) {
	text, err := f.r.Generate(ctx, req)
	if err != nil {
		f.log.Error("Failed to generate response, using fallback", zap.Error(err))
		return f.text, nil
	}
	return text, nil
}
