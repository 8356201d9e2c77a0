// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package gmail sends mail through the Gmail API, authorized with OAuth.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"src.bluestatic.org/mailresponder/pkg/dispatch"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Authorizer supplies OAuth credentials for a user. CodeServer implements it.
type Authorizer interface {
	Token(ctx context.Context, user string) (*oauth2.Token, error)
	Client(ctx context.Context, user string, token *oauth2.Token) *http.Client
}

// ErrNotAuthorized is returned by Dial before Authorize has succeeded.
var ErrNotAuthorized = errors.New("Transport is not authorized")

const sendTimeout = 2 * time.Minute

// Transport sends each message with users.messages.send as Email. Authorize
// must succeed before the first Dial.
type Transport struct {
	email string
	auth  Authorizer
	log   *zap.Logger
	opts  []option.ClientOption

	mu     sync.Mutex
	client *http.Client
}

func NewTransport(email string, auth Authorizer, log *zap.Logger) *Transport {
	return &Transport{
		email: email,
		auth:  auth,
		log:   log.With(zap.String("gmail", email)),
	}
}

type gmailConn struct {
	ctx context.Context
	svc *gmail.Service
	log *zap.Logger
}

// Authorize obtains the OAuth token for Email, waiting for the user to grant
// access in a browser if none is stored. It returns early if ctx is done.
func (t *Transport) Authorize(ctx context.Context) error {
	token, err := t.auth.Token(ctx, t.email)
	if err != nil {
		return &dispatch.DeliveryError{Reason: "failed to obtain OAuth token", Err: err}
	}
	// The client refreshes the token for as long as the transport is used.
	client := t.auth.Client(context.WithoutCancel(ctx), t.email, token)

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	t.log.Info("Authorized Gmail transport")
	return nil
}

func (t *Transport) Dial(ctx context.Context) (dispatch.Conn, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, &dispatch.DeliveryError{Reason: "not authorized", Err: ErrNotAuthorized}
	}

	opts := append([]option.ClientOption{
		option.WithHTTPClient(client),
		option.WithUserAgent("mailresponder"),
	}, t.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &dispatch.DeliveryError{Reason: "failed to create Gmail service", Err: err}
	}
	return &gmailConn{ctx: ctx, svc: svc, log: t.log}, nil
}

// Deliver sends msg as-is. The API derives the envelope from the message
// headers, so from and to are only logged.
func (c *gmailConn) Deliver(from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()
	enc := base64.RawURLEncoding.EncodeToString(msg)
	result, err := c.svc.Users.Messages.Send("me", &gmail.Message{Raw: enc}).Context(ctx).Do()
	if err != nil {
		return &dispatch.DeliveryError{Reason: "failed to send message", Err: err}
	}
	c.log.Debug("Sent message", zap.String("gmailID", result.Id), zap.Strings("to", to))
	return nil
}

func (c *gmailConn) Close() error {
	return nil
}
