package client

import (
	"context"
	"fmt"
	"net/http"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Session is an authenticated view of a Client, created by Login or
// WithToken. Requests executed through it carry the session token as a
// cookie-style header. Sessions are single-writer: Logout clears the
// token and the session is closed from then on.
type Session struct {
	client *Client
	token  string
}

// Login authenticates against the platform's login endpoint and returns
// the session holding the issued token.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	resp, err := c.do(ctx, &Request{
		Method: http.MethodPost,
		Path:   c.config.LoginPath,
		Body:   loginRequest{Username: username, Password: password},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var lr loginResponse
	if err := resp.DecodeJSON(&lr); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if lr.Token == "" {
		return nil, fmt.Errorf("login: response carried no token")
	}

	c.logger.Info().Str("user", username).Msg("Login succeeded")

	return &Session{client: c, token: lr.Token}, nil
}

// WithToken wraps the client in a session around an already issued token,
// for scripts that persist tokens between runs.
func (c *Client) WithToken(token string) *Session {
	return &Session{client: c, token: token}
}

// Do executes a request descriptor with the session token injected.
func (s *Session) Do(ctx context.Context, req *Request) (*Response, error) {
	if s.token == "" {
		return nil, ErrSessionClosed
	}
	return s.client.do(ctx, req, s.token)
}

// Token returns the raw session token.
func (s *Session) Token() string {
	return s.token
}

// Logout invalidates the token server-side and closes the session. The
// local token is cleared even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	if s.token == "" {
		return nil
	}

	_, err := s.client.do(ctx, &Request{
		Method: http.MethodPost,
		Path:   s.client.config.LogoutPath,
	}, s.token)
	s.token = ""

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.client.logger.Info().Msg("Logout succeeded")
	return nil
}
