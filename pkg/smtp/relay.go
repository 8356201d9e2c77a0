// mailresponder
// Copyright 2020 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package smtp submits outbound mail to an authenticated SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"time"

	"src.bluestatic.org/mailresponder/pkg/dispatch"

	"go.uber.org/zap"
)

type Config struct {
	// ServerAddr is the host:port of the submission server.
	ServerAddr string
	// UseTLS selects implicit TLS (port 465). Otherwise STARTTLS is used when
	// the server offers it.
	UseTLS bool

	Username string
	Password string

	// HelloName is sent with EHLO. Defaults to "localhost".
	HelloName string
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Transport dials a new SMTP session for each delivery.
type Transport struct {
	c    Config
	log  *zap.Logger
	dial dialFunc
}

func NewTransport(c Config, log *zap.Logger) *Transport {
	d := &net.Dialer{Timeout: 30 * time.Second}
	return &Transport{
		c:    c,
		log:  log.With(zap.String("relay", c.ServerAddr)),
		dial: d.DialContext,
	}
}

type relayConn struct {
	c   *smtp.Client
	log *zap.Logger
}

func failure(log *zap.Logger, reason string, err error) error {
	log.Debug(reason, zap.Error(err))
	return &dispatch.DeliveryError{Reason: reason, Err: err}
}

// Dial connects and authenticates to the relay.
func (t *Transport) Dial(ctx context.Context) (dispatch.Conn, error) {
	host, _, err := net.SplitHostPort(t.c.ServerAddr)
	if err != nil {
		return nil, failure(t.log, "invalid server address", err)
	}

	nc, err := t.dial(ctx, "tcp", t.c.ServerAddr)
	if err != nil {
		return nil, failure(t.log, "failed to dial host", err)
	}
	if t.c.UseTLS {
		tc := tls.Client(nc, &tls.Config{ServerName: host})
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, failure(t.log, "failed TLS handshake", err)
		}
		nc = tc
	}

	c, err := smtp.NewClient(nc, host)
	if err != nil {
		nc.Close()
		return nil, failure(t.log, "failed to read greeting", err)
	}

	helloName := t.c.HelloName
	if helloName == "" {
		helloName = "localhost"
	}
	if err = c.Hello(helloName); err != nil {
		c.Close()
		return nil, failure(t.log, "failed to HELO", err)
	}

	if !t.c.UseTLS {
		if hasTls, _ := c.Extension("STARTTLS"); hasTls {
			config := &tls.Config{ServerName: host}
			if err = c.StartTLS(config); err != nil {
				c.Close()
				return nil, failure(t.log, "failed to STARTTLS", err)
			}
		}
	}

	if t.c.Username != "" {
		auth := smtp.PlainAuth("", t.c.Username, t.c.Password, host)
		if err = c.Auth(auth); err != nil {
			c.Close()
			return nil, failure(t.log, "failed to AUTH", err)
		}
	}

	return &relayConn{c: c, log: t.log}, nil
}

func (r *relayConn) Deliver(from string, to []string, msg []byte) error {
	if err := r.c.Mail(from); err != nil {
		return failure(r.log, "failed MAIL FROM", err)
	}

	for _, rcptTo := range to {
		if err := r.c.Rcpt(rcptTo); err != nil {
			return failure(r.log.With(zap.String("address", rcptTo)), "failed to RCPT TO", err)
		}
	}

	wc, err := r.c.Data()
	if err != nil {
		return failure(r.log, "failed to DATA", err)
	}

	if _, err = wc.Write(msg); err != nil {
		wc.Close()
		return failure(r.log, "failed to write DATA", err)
	}

	if err = wc.Close(); err != nil {
		return failure(r.log, "failed to close DATA", err)
	}
	return nil
}

func (r *relayConn) Close() error {
	if err := r.c.Quit(); err != nil {
		r.c.Close()
		return err
	}
	return nil
}
