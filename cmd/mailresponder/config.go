// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"strings"

	"src.bluestatic.org/mailresponder/pkg/body"
	"src.bluestatic.org/mailresponder/pkg/gmail"
	"src.bluestatic.org/mailresponder/pkg/reply"
	"src.bluestatic.org/mailresponder/pkg/responder"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type ServerType string

const (
	ServerTypeIMAP  ServerType = "imap"
	ServerTypePOP3  ServerType = "pop3"
	ServerTypeSMTP  ServerType = "smtp"
	ServerTypeGmail ServerType = "gmail"
)

type ServerConfig struct {
	Type       ServerType
	ServerAddr string
	UseTLS     bool

	Email string

	Password string
}

func (c ServerConfig) LogDescription() string {
	return fmt.Sprintf("%s:%s", c.Type, c.Email)
}

type ReplyConfig struct {
	SubjectPrefix     string
	ThreadMarker      string
	QuoteTemplate     string
	DecodePlaceholder string
}

type ResponderType string

const (
	ResponderTypeOpenAI ResponderType = "openai"
	ResponderTypeStatic ResponderType = "static"
)

type ResponderConfig struct {
	Type ResponderType

	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
	SystemPrompt   string
	ThreadPrompt   string
	SinglePrompt   string

	// FallbackText is sent when generation fails. Empty disables the
	// fallback, and the message goes unanswered.
	FallbackText string
	StaticText   string
}

type Config struct {
	// Mailbox is watched for new mail.
	Mailbox ServerConfig
	// Transport delivers replies. Email and Password default to the Mailbox
	// credentials.
	Transport ServerConfig

	PollIntervalSeconds int
	// RepliesPerMinute caps outbound mail. Zero is unlimited.
	RepliesPerMinute int

	Reply     ReplyConfig
	Responder ResponderConfig

	// OAuthServer is only used by the gmail transport.
	OAuthServer gmail.ServerConfig

	LogLevel string
}

const defaultFallbackText = `Hello,

We are sorry, but a temporary system error prevented us from preparing a
detailed answer. Your inquiry has been received and the responsible staff
will follow up as soon as possible.

Thank you.`

var defaults = map[string]any{
	"mailbox.type":       string(ServerTypeIMAP),
	"mailbox.serveraddr": "imap.gmail.com:993",
	"mailbox.usetls":     true,
	"mailbox.email":      "",
	"mailbox.password":   "",

	"transport.type":       string(ServerTypeSMTP),
	"transport.serveraddr": "smtp.gmail.com:587",
	"transport.usetls":     false,
	"transport.email":      "",
	"transport.password":   "",

	"pollintervalseconds": 10,
	"repliesperminute":    0,

	"reply.subjectprefix":     reply.DefaultSubjectPrefix,
	"reply.threadmarker":      body.DefaultThreadMarker,
	"reply.quotetemplate":     reply.DefaultQuoteTemplate,
	"reply.decodeplaceholder": body.DefaultPlaceholder,

	"responder.type":           string(ResponderTypeOpenAI),
	"responder.baseurl":        responder.DefaultBaseURL,
	"responder.apikey":         "",
	"responder.model":          responder.DefaultModel,
	"responder.maxtokens":      1000,
	"responder.temperature":    0.7,
	"responder.timeoutseconds": 90,
	"responder.systemprompt":   responder.DefaultSystemPrompt,
	"responder.threadprompt":   responder.DefaultThreadPrompt,
	"responder.singleprompt":   responder.DefaultSinglePrompt,
	"responder.fallbacktext":   defaultFallbackText,
	"responder.statictext":     "",

	"oauthserver.redirecturl":     "",
	"oauthserver.listenaddr":      "",
	"oauthserver.credentialspath": "",
	"oauthserver.tokenstore":      "",

	"loglevel": "info",
}

// LoadConfig reads the configuration file at path. Any key can be overridden
// from the environment, e.g. MAILRESPONDER_MAILBOX_PASSWORD.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MAILRESPONDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("Failed to read config %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("Failed to parse config %s: %w", path, err)
	}
	if c.Transport.Email == "" {
		c.Transport.Email = c.Mailbox.Email
	}
	if c.Transport.Password == "" {
		c.Transport.Password = c.Mailbox.Password
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Mailbox.Email == "" || c.Transport.Email == "" {
		return fmt.Errorf("Mailbox/Transport email missing")
	}
	if err := validateMailbox(c.Mailbox); err != nil {
		return fmt.Errorf("Invalid Mailbox: %w", err)
	}
	if err := validateTransport(c.Transport); err != nil {
		return fmt.Errorf("Invalid Transport: %w", err)
	}
	if c.Transport.Type == ServerTypeGmail {
		o := c.OAuthServer
		if o.RedirectURL == "" || o.ListenAddr == "" || o.CredentialsPath == "" || o.TokenStore == "" {
			return fmt.Errorf("OAuthServer settings are required for the gmail transport")
		}
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("Invalid PollIntervalSeconds: %d", c.PollIntervalSeconds)
	}
	if c.RepliesPerMinute < 0 {
		return fmt.Errorf("Invalid RepliesPerMinute: %d", c.RepliesPerMinute)
	}
	if c.Reply.ThreadMarker == "" {
		return fmt.Errorf("Missing Reply.ThreadMarker")
	}
	if c.Reply.QuoteTemplate != "" {
		if _, err := reply.ParseQuoteTemplate(c.Reply.QuoteTemplate); err != nil {
			return err
		}
	}
	if err := validateResponder(c.Responder); err != nil {
		return fmt.Errorf("Invalid Responder: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("Invalid LogLevel: %w", err)
	}
	return nil
}

func validateMailbox(c ServerConfig) error {
	if c.Type != ServerTypeIMAP && c.Type != ServerTypePOP3 {
		return fmt.Errorf("Invalid Type: %q", c.Type)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("Missing ServerAddr")
	}
	return nil
}

func validateTransport(c ServerConfig) error {
	switch c.Type {
	case ServerTypeSMTP:
		if c.ServerAddr == "" {
			return fmt.Errorf("Missing ServerAddr")
		}
	case ServerTypeGmail:
	default:
		return fmt.Errorf("Invalid Type: %q", c.Type)
	}
	return nil
}

func validateResponder(c ResponderConfig) error {
	switch c.Type {
	case ResponderTypeOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("Missing APIKey")
		}
		if c.MaxTokens < 0 || c.TimeoutSeconds < 0 {
			return fmt.Errorf("Invalid limits")
		}
	case ResponderTypeStatic:
		if c.StaticText == "" {
			return fmt.Errorf("Missing StaticText")
		}
	default:
		return fmt.Errorf("Invalid Type: %q", c.Type)
	}
	return nil
}
