// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"os"
	"path/filepath"
	"testing"

	"src.bluestatic.org/mailresponder/pkg/body"
	"src.bluestatic.org/mailresponder/pkg/reply"
	"src.bluestatic.org/mailresponder/pkg/responder"
)

func validConfig() Config {
	return Config{
		Mailbox: ServerConfig{
			Type:       ServerTypeIMAP,
			ServerAddr: "localhost:993",
			Email:      "here",
		},
		Transport: ServerConfig{
			Type:       ServerTypeSMTP,
			ServerAddr: "localhost:587",
			Email:      "here",
		},
		PollIntervalSeconds: 10,
		Reply: ReplyConfig{
			ThreadMarker:  body.DefaultThreadMarker,
			QuoteTemplate: reply.DefaultQuoteTemplate,
		},
		Responder: ResponderConfig{
			Type:   ResponderTypeOpenAI,
			APIKey: "sk-test",
		},
		LogLevel: "info",
	}
}

func TestValidConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestInvalidConfigs(t *testing.T) {
	mutations := map[string]func(*Config){
		"missing mailbox email":   func(c *Config) { c.Mailbox.Email = "" },
		"missing transport email": func(c *Config) { c.Transport.Email = "" },
		"missing mailbox addr":    func(c *Config) { c.Mailbox.ServerAddr = "" },
		"missing transport addr":  func(c *Config) { c.Transport.ServerAddr = "" },
		"smtp mailbox":            func(c *Config) { c.Mailbox.Type = ServerTypeSMTP },
		"pop5 mailbox":            func(c *Config) { c.Mailbox.Type = ServerType("pop5") },
		"imap transport":          func(c *Config) { c.Transport.Type = ServerTypeIMAP },
		"gmail without oauth":     func(c *Config) { c.Transport.Type = ServerTypeGmail },
		"zero poll interval":      func(c *Config) { c.PollIntervalSeconds = 0 },
		"negative rate":           func(c *Config) { c.RepliesPerMinute = -1 },
		"missing marker":          func(c *Config) { c.Reply.ThreadMarker = "" },
		"bad template":            func(c *Config) { c.Reply.QuoteTemplate = "{{.Nope" },
		"unknown template field":  func(c *Config) { c.Reply.QuoteTemplate = "{{.Recipient}}" },
		"missing api key":         func(c *Config) { c.Responder.APIKey = "" },
		"negative max tokens":     func(c *Config) { c.Responder.MaxTokens = -1 },
		"static without text":     func(c *Config) { c.Responder.Type = ResponderTypeStatic },
		"unknown responder":       func(c *Config) { c.Responder.Type = ResponderType("oracle") },
		"bad log level":           func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range mutations {
		c := validConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("Expected error for %s", name)
		}
	}
}

func TestGmailTransportConfig(t *testing.T) {
	c := validConfig()
	c.Transport.Type = ServerTypeGmail
	c.Transport.ServerAddr = ""
	c.OAuthServer.RedirectURL = "https://example.com/oauth"
	c.OAuthServer.ListenAddr = "localhost:8080"
	c.OAuthServer.CredentialsPath = "/etc/mailresponder/credentials.json"
	c.OAuthServer.TokenStore = "/var/lib/mailresponder"
	if err := c.Validate(); err != nil {
		t.Errorf("Expected valid gmail config, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	const data = `{
  "Mailbox": {
    "Email": "assistant@example.com",
    "Password": "from-file"
  },
  "PollIntervalSeconds": 30,
  "Responder": {
    "APIKey": "sk-test"
  }
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAILRESPONDER_MAILBOX_PASSWORD", "from-env")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if want, got := ServerTypeIMAP, c.Mailbox.Type; want != got {
		t.Errorf("Expected mailbox type %q, got %q", want, got)
	}
	if want, got := "imap.gmail.com:993", c.Mailbox.ServerAddr; want != got {
		t.Errorf("Expected mailbox addr %q, got %q", want, got)
	}
	if !c.Mailbox.UseTLS {
		t.Errorf("Expected mailbox TLS by default")
	}
	if want, got := "from-env", c.Mailbox.Password; want != got {
		t.Errorf("Expected password %q, got %q", want, got)
	}
	if want, got := "assistant@example.com", c.Transport.Email; want != got {
		t.Errorf("Expected transport email %q, got %q", want, got)
	}
	if want, got := "from-env", c.Transport.Password; want != got {
		t.Errorf("Expected transport password %q, got %q", want, got)
	}
	if want, got := 30, c.PollIntervalSeconds; want != got {
		t.Errorf("Expected poll interval %d, got %d", want, got)
	}
	if want, got := responder.DefaultModel, c.Responder.Model; want != got {
		t.Errorf("Expected model %q, got %q", want, got)
	}
	if want, got := body.DefaultThreadMarker, c.Reply.ThreadMarker; want != got {
		t.Errorf("Expected marker %q, got %q", want, got)
	}
	if c.Responder.FallbackText == "" {
		t.Errorf("Expected default fallback text")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Expected loaded config to be valid, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Expected error for missing config file")
	}
}
