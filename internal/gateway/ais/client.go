// Package ais implements gateway.Gateway against the US visa appointment
// portal (ais.usvisa-info.com) with a plain HTTP client.
//
// Each session gets its own cookie jar; the portal keys the login on the
// _yatri_session cookie. Requests are paced by a token bucket so bursts never
// leave the process, and idempotent reads are retried with exponential backoff.
package ais

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const (
	maxBodyBytes = 4 << 20

	acceptJSON = "application/json, text/javascript, */*; q=0.01"
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJS   = "*/*;q=0.5, text/javascript, application/javascript, application/ecmascript, application/x-ecmascript"
)

type Client struct {
	cfg       Config
	log       logx.Logger
	limiter   *rate.Limiter
	transport http.RoundTripper
}

var _ gateway.Gateway = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ais config: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Mode == ModeRemote {
		hub, err := url.Parse(cfg.HubAddress)
		if err != nil {
			return nil, fmt.Errorf("ais hub address: %w", err)
		}
		tr.Proxy = http.ProxyURL(hub)
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.StepInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.StepInterval), 1)
	}
	return &Client{cfg: cfg, log: log, limiter: lim, transport: tr}, nil
}

// session is the gateway.Session handed out by Authenticate.
type session struct {
	id   string
	http *http.Client
}

func (s *session) ID() string { return s.id }

func (c *Client) newSession() (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &session{
		id: uuid.NewString(),
		http: &http.Client{
			Jar:       jar,
			Transport: c.transport,
			Timeout:   c.cfg.RequestTimeout,
		},
	}, nil
}

func asSession(s gateway.Session) (*session, error) {
	ss, ok := s.(*session)
	if !ok || ss == nil {
		return nil, fmt.Errorf("ais: foreign or nil session %T", s)
	}
	return ss, nil
}

// ---- URLs ----

func (c *Client) localePath(p string) string {
	return c.cfg.BaseURL + "/" + c.cfg.Embassy.Locale + "/niv" + p
}

func (c *Client) signInURL() string  { return c.localePath("/users/sign_in") }
func (c *Client) signOutURL() string { return c.localePath("/users/sign_out") }
func (c *Client) groupURL() string   { return c.localePath("/groups/" + url.PathEscape(c.cfg.GroupID)) }

func (c *Client) appointmentURL() string {
	return c.localePath("/schedule/" + url.PathEscape(c.cfg.ScheduleID) + "/appointment")
}

func (c *Client) daysURL() string {
	return c.appointmentURL() + "/days/" + strconv.Itoa(c.cfg.Embassy.FacilityID) + ".json?appointments[expedite]=false"
}

func (c *Client) timesURL(date string) string {
	return c.appointmentURL() + "/times/" + strconv.Itoa(c.cfg.Embassy.FacilityID) +
		".json?date=" + url.QueryEscape(date) + "&appointments[expedite]=false"
}

// ---- transport helpers ----

type response struct {
	status int
	final  *url.URL
	body   []byte
}

// send paces and performs one request. The body is fully read and closed.
func (c *Client) send(ctx context.Context, s *session, req *http.Request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	c.log.Trace("ais request",
		logx.String("method", req.Method),
		logx.String("path", req.URL.Path),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(b)),
	)
	return &response{status: resp.StatusCode, final: final, body: b}, nil
}

// retryableStatus marks server-side failures worth another attempt.
type retryableStatus int

func (r retryableStatus) Error() string { return fmt.Sprintf("server returned status %d", int(r)) }

// get performs an idempotent GET, retrying network errors and 5xx answers.
func (c *Client) get(ctx context.Context, s *session, rawURL string, headers map[string]string) (*response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBase
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0.3

	attempts := 1 + c.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.send(ctx, s, req)
		if err == nil && resp.status < 500 {
			return resp, nil
		}
		if err == nil {
			err = retryableStatus(resp.status)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = bo.MaxInterval
		}
		c.log.Debug("ais read failed; retrying",
			logx.String("path", req.URL.Path),
			logx.Int("attempt", attempt),
			logx.Duration("wait", wait),
			logx.Err(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, lastErr
}

func (c *Client) postForm(ctx context.Context, s *session, rawURL string, form url.Values, headers map[string]string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.send(ctx, s, req)
}

func isSignInURL(u *url.URL) bool {
	return u != nil && strings.HasSuffix(u.Path, "/users/sign_in")
}

// checkAuthenticated turns a bounce to the sign-in page or a 401 into ErrSessionExpired.
func checkAuthenticated(resp *response) error {
	if resp.status == http.StatusUnauthorized || isSignInURL(resp.final) {
		return gateway.ErrSessionExpired
	}
	return nil
}

func unexpected(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", gateway.ErrUnexpectedResponse, what)
	}
	return fmt.Errorf("%w: %s: %v", gateway.ErrUnexpectedResponse, what, err)
}
