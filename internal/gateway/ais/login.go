package ais

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// Authenticate runs the sign-in flow on a fresh cookie jar:
//  1. GET the sign-in page for the session cookie and CSRF token
//  2. POST the credentials the way the page's XHR does
//  3. GET the group page and require the embassy's continue link
func (c *Client) Authenticate(ctx context.Context) (gateway.Session, error) {
	s, err := c.newSession()
	if err != nil {
		return nil, &gateway.AuthError{Step: "cookie jar", Err: err}
	}

	page, err := c.get(ctx, s, c.signInURL(), map[string]string{"Accept": acceptHTML})
	if err != nil {
		return nil, &gateway.AuthError{Step: "load sign-in page", Err: err}
	}
	doc, err := parseHTML(page.body)
	if err != nil {
		return nil, &gateway.AuthError{Step: "parse sign-in page", Err: err}
	}
	token := metaContent(doc, "csrf-token")
	if token == "" {
		return nil, &gateway.AuthError{Step: "csrf token missing"}
	}

	form := url.Values{
		"user[email]":      {c.cfg.Username},
		"user[password]":   {c.cfg.Password},
		"policy_confirmed": {"1"},
		"commit":           {"Sign In"},
	}
	resp, err := c.postForm(ctx, s, c.signInURL(), form, map[string]string{
		"Accept":           acceptJS,
		"X-CSRF-Token":     token,
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          c.signInURL(),
	})
	if err != nil {
		return nil, &gateway.AuthError{Step: "submit credentials", Err: err}
	}
	if resp.status != http.StatusOK {
		return nil, &gateway.AuthError{Step: "submit credentials", Err: fmt.Errorf("status %d", resp.status)}
	}

	group, err := c.get(ctx, s, c.groupURL(), map[string]string{"Accept": acceptHTML})
	if err != nil {
		return nil, &gateway.AuthError{Step: "verify session", Err: err}
	}
	if err := checkAuthenticated(group); err != nil {
		return nil, &gateway.AuthError{Step: "verify session", Err: err}
	}
	if want := c.cfg.Embassy.ContinueText; want != "" && !strings.Contains(string(group.body), want) {
		return nil, &gateway.AuthError{Step: "verify session", Err: fmt.Errorf("continue text %q not found", want)}
	}

	c.log.Info("signed in", logx.String("session", s.id), logx.String("locale", c.cfg.Embassy.Locale))
	return s, nil
}

func (c *Client) SignOut(ctx context.Context, gs gateway.Session) error {
	s, err := asSession(gs)
	if err != nil {
		return err
	}
	defer s.http.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.signOutURL(), http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptHTML)
	if _, err := c.send(ctx, s, req); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	c.log.Debug("signed out", logx.String("session", s.id))
	return nil
}
