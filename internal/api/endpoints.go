package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/token"
)

// Register creates a user record. It needs no token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserOut, error) {
	var result UserOut
	err := c.do(ctx, nil, request{method: http.MethodPost, path: "/register", body: req, act: "register"}, &result)
	if err != nil {
		return nil, WithResourceType(err, ResourceUser)
	}
	return &result, nil
}

// Login fetches the caller's record, including the sealed master.
func (c *Client) Login(ctx context.Context, authz Authorizer) (*UserRecord, error) {
	var result UserRecord
	err := c.do(ctx, authz, request{method: http.MethodPost, path: "/login", act: token.ActLogin}, &result)
	if err != nil {
		return nil, WithResourceType(err, ResourceUser)
	}
	return &result, nil
}

// ListUsers returns the public directory.
func (c *Client) ListUsers(ctx context.Context, authz Authorizer) ([]UserOut, error) {
	var result []UserOut
	if err := c.do(ctx, authz, request{method: http.MethodGet, path: "/users", act: token.ActUsersList}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// PostMessage submits an envelope. An unknown rcpt_id matches
// ErrRecipientNotFound.
func (c *Client) PostMessage(ctx context.Context, authz Authorizer, env *crypto.Envelope) (*SendResult, error) {
	var result SendResult
	err := c.do(ctx, authz, request{method: http.MethodPost, path: "/messages", body: env, act: token.ActMessagesSend}, &result)
	if err != nil {
		return nil, WithResourceType(err, ResourceRecipient)
	}
	return &result, nil
}

// FetchInbox returns one page of envelopes addressed to rcptID.
func (c *Client) FetchInbox(ctx context.Context, authz Authorizer, rcptID string, page PageRequest) (*Page, error) {
	q := pageQuery(page)
	q.Set("rcpt_id", rcptID)

	var result Page
	if err := c.do(ctx, authz, request{method: http.MethodGet, path: "/inbox", query: q, act: token.ActInboxFetch}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchConversation returns one page of envelopes in the conversation bucket.
func (c *Client) FetchConversation(ctx context.Context, authz Authorizer, convToken string, page PageRequest) (*Page, error) {
	path := "/conversations/" + url.PathEscape(convToken)

	var result Page
	err := c.do(ctx, authz, request{method: http.MethodGet, path: path, query: pageQuery(page), act: token.ActConversationFetch}, &result)
	if err != nil {
		return nil, WithResourceType(err, ResourceConversation)
	}
	return &result, nil
}

// PushURL returns the WebSocket URL of the push stream for rcptID, with the
// ws.open token and email in the query string.
func (c *Client) PushURL(authz Authorizer, rcptID string) (string, error) {
	tok, err := authz.Token(token.ActWSOpen, map[string]any{"rcpt_id": rcptID})
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", token.ActWSOpen, err)
	}

	u, err := url.Parse(c.baseURL + "/ws/inbox")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {tok}, "email": {authz.Email()}}.Encode()
	return u.String(), nil
}

func pageQuery(p PageRequest) url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	return q
}
