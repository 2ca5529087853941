package ais

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const (
	testUser     = "user@example.com"
	testPassword = "s3cret"
	testCSRF     = "csrf-abc"
	testFormTok  = "form-xyz"
)

// fakePortal mimics the parts of the portal the client talks to.
type fakePortal struct {
	days         string
	daysFailures atomic.Int32
	appt         string
	submitted    atomic.Value // encoded form of the last submission
	signedOut    atomic.Bool
}

func authed(r *http.Request) bool {
	c, err := r.Cookie("_yatri_session")
	return err == nil && c.Value == "authed"
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /en-il/niv/users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_yatri_session", Value: "anon", Path: "/"})
		fmt.Fprintf(w, `<html><head><meta name="csrf-token" content="%s"></head><body><form></form></body></html>`, testCSRF)
	})
	mux.HandleFunc("POST /en-il/niv/users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != testCSRF || r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			http.Error(w, "bad token", http.StatusUnprocessableEntity)
			return
		}
		if r.FormValue("user[email]") == testUser && r.FormValue("user[password]") == testPassword &&
			r.FormValue("policy_confirmed") == "1" {
			http.SetCookie(w, &http.Cookie{Name: "_yatri_session", Value: "authed", Path: "/"})
		}
		fmt.Fprint(w, `window.location.href = "/en-il/niv/account"`)
	})
	mux.HandleFunc("GET /en-il/niv/users/sign_out", func(w http.ResponseWriter, r *http.Request) {
		p.signedOut.Store(true)
		http.SetCookie(w, &http.Cookie{Name: "_yatri_session", Value: "", Path: "/", MaxAge: -1})
		fmt.Fprint(w, "bye")
	})
	mux.HandleFunc("GET /en-il/niv/groups/G1", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Redirect(w, r, "/en-il/niv/users/sign_in", http.StatusFound)
			return
		}
		fmt.Fprintf(w, `<html><body><a href="/x">Continue</a>%s</body></html>`, p.appt)
	})
	mux.HandleFunc("GET /en-il/niv/schedule/S1/appointment/days/97.json", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, `{"error":"You need to sign in"}`, http.StatusUnauthorized)
			return
		}
		if p.daysFailures.Load() > 0 {
			p.daysFailures.Add(-1)
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("appointments[expedite]") != "false" {
			http.Error(w, "missing expedite", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, p.days)
	})
	mux.HandleFunc("GET /en-il/niv/schedule/S1/appointment/times/97.json", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("date") != "2025-10-15" {
			fmt.Fprint(w, `{"available_times":[],"business_times":[]}`)
			return
		}
		fmt.Fprint(w, `{"available_times":["08:00","09:15"],"business_times":["08:00","09:15"]}`)
	})
	mux.HandleFunc("GET /en-il/niv/schedule/S1/appointment", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Redirect(w, r, "/en-il/niv/users/sign_in", http.StatusFound)
			return
		}
		fmt.Fprintf(w, `<form>
<input type="hidden" name="utf8" value="✓">
<input type="hidden" name="authenticity_token" value="%s">
<input type="hidden" name="confirmed_limit_message" value="1">
<input type="hidden" name="use_consulate_appointment_capacity" value="true">
</form>`, testFormTok)
	})
	mux.HandleFunc("POST /en-il/niv/schedule/S1/appointment", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		p.submitted.Store(r.PostForm.Encode())
		if r.PostForm.Get("authenticity_token") != testFormTok ||
			r.PostForm.Get("appointments[consulate_appointment][facility_id]") != "97" {
			fmt.Fprint(w, "There was an error")
			return
		}
		fmt.Fprint(w, "<h2>You have Successfully Scheduled your appointment</h2>")
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, password string) *Client {
	t.Helper()
	emb, _ := LookupEmbassy("en-il")
	c, err := New(Config{
		BaseURL:    srv.URL,
		Embassy:    emb,
		Username:   testUser,
		Password:   password,
		ScheduleID: "S1",
		GroupID:    "G1",
		RetryMax:   2,
		RetryBase:  time.Millisecond,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientEndToEnd(t *testing.T) {
	t.Parallel()
	p := &fakePortal{
		days: `[{"date":"2025-10-15","business_day":true},{"date":"2025-12-25","business_day":true}]`,
		appt: `<p class="consular-appt"><strong>Consular Appointment:</strong> 1 November, 2025, 08:15 Tel Aviv local time</p>`,
	}
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, testPassword)
	ctx := context.Background()

	s, err := c.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if s.ID() == "" {
		t.Fatal("expected session id")
	}

	held, ok, err := c.FetchCurrentAppointment(ctx, s)
	if err != nil || !ok {
		t.Fatalf("FetchCurrentAppointment = %v, %v, %v", held, ok, err)
	}
	if want := (civil.Date{Year: 2025, Month: time.November, Day: 1}); held != want {
		t.Fatalf("held = %s, want %s", held, want)
	}

	got, err := c.FetchAvailableDates(ctx, s)
	if err != nil {
		t.Fatalf("FetchAvailableDates: %v", err)
	}
	if len(got) != 2 || got[0].String() != "2025-10-15" || got[1].String() != "2025-12-25" {
		t.Fatalf("dates = %v", got)
	}

	times, err := c.FetchAvailableTimes(ctx, s, got[0])
	if err != nil {
		t.Fatalf("FetchAvailableTimes: %v", err)
	}
	if len(times) != 2 || times[1] != "09:15" {
		t.Fatalf("times = %v", times)
	}

	body, err := c.SubmitReschedule(ctx, s, got[0], times[1])
	if err != nil {
		t.Fatalf("SubmitReschedule: %v", err)
	}
	if !strings.Contains(body, "Successfully Scheduled") {
		t.Fatalf("body = %q", body)
	}
	sub, _ := p.submitted.Load().(string)
	for _, want := range []string{"authenticity_token=" + testFormTok, "2025-10-15", "09%3A15"} {
		if !strings.Contains(sub, want) {
			t.Fatalf("submitted form %q missing %q", sub, want)
		}
	}

	if err := c.SignOut(ctx, s); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if !p.signedOut.Load() {
		t.Fatal("sign out endpoint not hit")
	}
	if _, err := c.FetchAvailableDates(ctx, s); !errors.Is(err, gateway.ErrSessionExpired) {
		t.Fatalf("after sign out err = %v, want ErrSessionExpired", err)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer((&fakePortal{}).handler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, "wrong")

	_, err := c.Authenticate(context.Background())
	if !errors.Is(err, gateway.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	var ae *gateway.AuthError
	if !errors.As(err, &ae) || ae.Step != "verify session" {
		t.Fatalf("err = %#v, want verify session step", err)
	}
}

func TestEmptyListingAndNoAppointment(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer((&fakePortal{days: `[]`}).handler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, testPassword)
	ctx := context.Background()

	s, err := c.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, ok, err := c.FetchCurrentAppointment(ctx, s); err != nil || ok {
		t.Fatalf("FetchCurrentAppointment ok=%v err=%v, want none", ok, err)
	}
	got, err := c.FetchAvailableDates(ctx, s)
	if err != nil {
		t.Fatalf("FetchAvailableDates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("dates = %v, want empty", got)
	}
}

func TestReadsRetryServerErrors(t *testing.T) {
	t.Parallel()
	p := &fakePortal{days: `[{"date":"2025-03-01","business_day":true}]`}
	p.daysFailures.Store(2)
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, testPassword)
	ctx := context.Background()

	s, err := c.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	got, err := c.FetchAvailableDates(ctx, s)
	if err != nil {
		t.Fatalf("FetchAvailableDates after transient 503s: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("dates = %v", got)
	}

	p.daysFailures.Store(5)
	if _, err := c.FetchAvailableDates(ctx, s); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
}

func TestMalformedListing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer((&fakePortal{days: `<html>maintenance</html>`}).handler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, testPassword)
	ctx := context.Background()

	s, err := c.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := c.FetchAvailableDates(ctx, s); !errors.Is(err, gateway.ErrUnexpectedResponse) {
		t.Fatalf("err = %v, want ErrUnexpectedResponse", err)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected validation error for empty config")
	}
	emb, _ := LookupEmbassy("EN-IL")
	_, err := New(Config{
		Embassy: emb, Username: "u", Password: "p", ScheduleID: "1", GroupID: "2",
		Mode: ModeRemote,
	}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for remote mode without hub address")
	}
}

func TestParseAppointmentDate(t *testing.T) {
	t.Parallel()
	d, ok := parseAppointmentDate("Consular Appointment: 17 March, 2026, 08:15 Tel Aviv local time")
	if !ok || d.String() != "2026-03-17" {
		t.Fatalf("parseAppointmentDate = %s, %v", d, ok)
	}
	if _, ok := parseAppointmentDate("No appointment"); ok {
		t.Fatal("expected no date")
	}
}
