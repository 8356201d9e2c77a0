// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package dispatch delivers composed replies over an outbound mail transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"src.bluestatic.org/mailresponder/pkg/reply"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrDelivery matches every *DeliveryError.
var ErrDelivery = errors.New("delivery failed")

// DeliveryError reports why a reply was not sent. There is no partial
// success: a reply is either fully handed to the transport or not sent.
type DeliveryError struct {
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return "Delivery failed: " + e.Reason
	}
	return fmt.Sprintf("Delivery failed: %s: %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// Transport opens outbound sessions.
type Transport interface {
	// Dial connects and authenticates.
	Dial(context.Context) (Conn, error)
}

// Conn is an authenticated outbound session.
type Conn interface {
	// Deliver transmits one RFC 5322 message.
	Deliver(from string, to []string, msg []byte) error
	Close() error
}

type Dispatcher struct {
	t       Transport
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Dispatcher. If repliesPerMinute is positive, Send blocks as
// needed to stay under that rate.
func New(t Transport, repliesPerMinute int, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{t: t, log: log, now: time.Now}
	if repliesPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(repliesPerMinute)), repliesPerMinute)
	}
	return d
}

// Send opens a transport session, delivers the reply and closes the session.
// All failures are reported as *DeliveryError. Cancelling ctx only aborts the
// throttle wait; once the transport is dialed the delivery runs to completion.
func (d *Dispatcher) Send(ctx context.Context, out reply.Outbound) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return &DeliveryError{Reason: "throttled", Err: err}
		}
	}
	ctx = context.WithoutCancel(ctx)

	msg, err := out.Render(d.now())
	if err != nil {
		return &DeliveryError{Reason: "failed to render message", Err: err}
	}

	conn, err := d.t.Dial(ctx)
	if err != nil {
		return asDeliveryError("failed to connect to transport", err)
	}

	if err := conn.Deliver(out.From, out.Recipients(), msg); err != nil {
		conn.Close()
		return asDeliveryError("failed to deliver message", err)
	}

	if err := conn.Close(); err != nil {
		d.log.Warn("Failed to close transport session after delivery",
			zap.String("to", out.To), zap.Error(err))
	}
	return nil
}

// asDeliveryError keeps the reason of a transport-generated *DeliveryError.
func asDeliveryError(reason string, err error) error {
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Reason: reason, Err: err}
}
