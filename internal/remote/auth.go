package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Agent is the signed-in user as the auth collaborator describes it.
type Agent struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResult is the auth collaborator's answer to a successful login.
type LoginResult struct {
	Token string `json:"token"`
	Agent
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token. Credentials are never retained.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	req := call{op: "login", method: http.MethodPost, path: "/auth/login", body: loginRequest{Email: email, Password: password}}
	if err := c.As("").do(ctx, req, &res); err != nil {
		return LoginResult{}, err
	}
	res.Role = strings.ToUpper(res.Role)
	return res, nil
}

// Me fetches the agent behind the connection's token.
func (cn *Conn) Me(ctx context.Context) (Agent, error) {
	var a Agent
	if err := cn.do(ctx, call{op: "me", method: http.MethodGet, path: "/auth/me"}, &a); err != nil {
		return Agent{}, err
	}
	a.Role = strings.ToUpper(a.Role)
	return a, nil
}

// Logout tells the auth collaborator the token is no longer in use.
func (cn *Conn) Logout(ctx context.Context) error {
	return cn.do(ctx, call{op: "logout", method: http.MethodPost, path: "/auth/logout"}, nil)
}

// GetRaw fetches a collaborator resource and returns its JSON verbatim.
func (cn *Conn) GetRaw(ctx context.Context, op, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := cn.do(ctx, call{op: op, method: http.MethodGet, path: path}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// PostRaw sends body to a collaborator and returns its JSON answer verbatim.
func (cn *Conn) PostRaw(ctx context.Context, op, path string, body interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := cn.do(ctx, call{op: op, method: http.MethodPost, path: path, body: body}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
