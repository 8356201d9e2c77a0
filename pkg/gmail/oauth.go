// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

type ServerConfig struct {
	// RedirectURL is the externally reachable URL of the code server, as
	// registered with the OAuth client.
	RedirectURL string
	ListenAddr  string
	// CredentialsPath is the client secret JSON downloaded from the Google
	// Cloud console.
	CredentialsPath string
	// TokenStore is the JSON file where granted tokens are kept.
	TokenStore string
}

// LoadClientConfig reads the OAuth client secret, scoped to sending mail.
func LoadClientConfig(path string) (*oauth2.Config, error) {
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read client secret: %w", err)
	}
	o2c, err := google.ConfigFromJSON(secret, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("Failed to load API config: %w", err)
	}
	return o2c, nil
}

const tokenStoreVersion = 1

type (
	tokenMap map[string]*oauth2.Token

	tokenStore struct {
		Version int
		Tokens  tokenMap
	}
)

func readTokenStore(path string) (*tokenStore, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &tokenStore{Version: tokenStoreVersion, Tokens: make(tokenMap)}, nil
		}
		return nil, err
	}
	defer f.Close()
	var ts *tokenStore
	if err := json.NewDecoder(f).Decode(&ts); err != nil {
		return nil, err
	}
	if ts.Version != tokenStoreVersion {
		return nil, fmt.Errorf("Invalid tokenStore version, got %d, expected %d", ts.Version, tokenStoreVersion)
	}
	if ts.Tokens == nil {
		ts.Tokens = make(tokenMap)
	}
	return ts, nil
}

// save writes the store to a temporary file and renames it over path.
func (ts *tokenStore) save(path string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(ts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CodeServer obtains OAuth tokens for users. Tokens are read from the token
// store; when none is stored, an authorization URL is logged and the server
// waits for the browser to be redirected back with a code.
type CodeServer struct {
	log *zap.Logger
	sc  ServerConfig
	o2c *oauth2.Config

	storeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan<- string
}

func NewCodeServer(sc ServerConfig, o2c *oauth2.Config, log *zap.Logger) *CodeServer {
	o2c.RedirectURL = sc.RedirectURL
	return &CodeServer{
		log:     log,
		sc:      sc,
		o2c:     o2c,
		pending: make(map[string]chan<- string),
	}
}

// Handler serves the OAuth redirect.
func (s *CodeServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRequest)
	return mux
}

// Run listens on ListenAddr until ctx is done.
func (s *CodeServer) Run(ctx context.Context) {
	srv := &http.Server{
		Handler: s.Handler(),
		Addr:    s.sc.ListenAddr,
	}
	go func() {
		s.log.Info("Starting OAuth server", zap.String("addr", srv.Addr))
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			s.log.Info("Stopping OAuth server")
		} else {
			s.log.Error("ListenAndServe", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}

// Token returns the stored token for user, or blocks until the user completes
// authorization in a browser or ctx is done.
func (s *CodeServer) Token(ctx context.Context, user string) (*oauth2.Token, error) {
	log := s.log.With(zap.String("user", user))

	s.storeMu.Lock()
	ts, err := readTokenStore(s.sc.TokenStore)
	s.storeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("Failed to read token store: %w", err)
	}
	if token, ok := ts.Tokens[user]; ok {
		return token, nil
	}

	nonce := fmt.Sprintf("rd%d", rand.Int64())
	codeCh := make(chan string, 1)
	s.mu.Lock()
	s.pending[nonce] = codeCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, nonce)
		s.mu.Unlock()
	}()

	// `ApprovalForce` is needed in combination with `AccessTypeOffline` in order
	// to get a refresh token.
	url := s.o2c.AuthCodeURL(nonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	log.Info("Requesting authorization", zap.String("nonce", nonce), zap.String("url", url))

	var code string
	select {
	case code = <-codeCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if code == "" {
		return nil, errors.New("Authorization was not granted")
	}

	log.Info("Received code, exchanging for token")
	token, err := s.o2c.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("Failed to exchange code: %w", err)
	}
	if err := s.saveToken(user, token); err != nil {
		return nil, fmt.Errorf("Failed to save token: %w", err)
	}
	return token, nil
}

func (s *CodeServer) saveToken(user string, token *oauth2.Token) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	ts, err := readTokenStore(s.sc.TokenStore)
	if err != nil {
		return err
	}
	ts.Tokens[user] = token
	return ts.save(s.sc.TokenStore)
}

// Client returns an HTTP client authorized as user. Refreshed tokens are
// written back to the token store.
func (s *CodeServer) Client(ctx context.Context, user string, token *oauth2.Token) *http.Client {
	src := &savingTokenSource{
		base: s.o2c.TokenSource(ctx, token),
		last: token,
		save: func(t *oauth2.Token) error { return s.saveToken(user, t) },
		log:  s.log.With(zap.String("user", user)),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src))
}

type savingTokenSource struct {
	base oauth2.TokenSource
	save func(*oauth2.Token) error
	log  *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || t.AccessToken != s.last.AccessToken {
		if err := s.save(t); err != nil {
			s.log.Warn("Failed to save refreshed token", zap.Error(err))
		}
		s.last = t
	}
	return t, nil
}

func (s *CodeServer) handleRequest(rw http.ResponseWriter, req *http.Request) {
	id := req.FormValue("state")
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	log := s.log.With(zap.String("id", id))

	if !ok {
		log.Error("No pending authorization for state")
		http.Error(rw, "Invalid State", http.StatusBadRequest)
		return
	}
	if code := req.FormValue("code"); code != "" {
		fmt.Fprintln(rw, "<h1>Authorized!</h1>")
		log.Info("Received authorization code")
		ch <- code
		return
	}
	log.Error("Invalid request - missing code", zap.String("error", req.FormValue("error")))
	close(ch)
	http.Error(rw, "Invalid Code", http.StatusBadRequest)
}
