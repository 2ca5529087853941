package ais

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
)

var xhrHeaders = map[string]string{
	"Accept":           acceptJSON,
	"X-Requested-With": "XMLHttpRequest",
}

// FetchCurrentAppointment reads the group page. No .consular-appt block means
// nothing is booked.
func (c *Client) FetchCurrentAppointment(ctx context.Context, gs gateway.Session) (civil.Date, bool, error) {
	s, err := asSession(gs)
	if err != nil {
		return civil.Date{}, false, err
	}
	resp, err := c.get(ctx, s, c.groupURL(), map[string]string{"Accept": acceptHTML})
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("group page: %w", err)
	}
	if err := checkAuthenticated(resp); err != nil {
		return civil.Date{}, false, err
	}
	doc, err := parseHTML(resp.body)
	if err != nil {
		return civil.Date{}, false, unexpected("group page", err)
	}
	n := firstByClass(doc, "consular-appt")
	if n == nil {
		return civil.Date{}, false, nil
	}
	text := textContent(n)
	d, ok := parseAppointmentDate(text)
	if !ok {
		return civil.Date{}, false, unexpected(fmt.Sprintf("appointment text %q", text), nil)
	}
	return d, true, nil
}

type dayEntry struct {
	Date        string `json:"date"`
	BusinessDay bool   `json:"business_day"`
}

func (c *Client) FetchAvailableDates(ctx context.Context, gs gateway.Session) ([]civil.Date, error) {
	s, err := asSession(gs)
	if err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, s, c.daysURL(), xhrHeaders)
	if err != nil {
		return nil, fmt.Errorf("available dates: %w", err)
	}
	if err := checkAuthenticated(resp); err != nil {
		return nil, err
	}
	var days []dayEntry
	if err := json.Unmarshal(resp.body, &days); err != nil {
		return nil, unexpected("available dates", err)
	}
	out := make([]civil.Date, 0, len(days))
	for _, e := range days {
		d, err := civil.ParseDate(e.Date)
		if err != nil {
			return nil, unexpected("available dates", err)
		}
		out = append(out, d)
	}
	return out, nil
}

type timesPayload struct {
	AvailableTimes []string `json:"available_times"`
	BusinessTimes  []string `json:"business_times"`
}

func (c *Client) FetchAvailableTimes(ctx context.Context, gs gateway.Session, d civil.Date) ([]string, error) {
	s, err := asSession(gs)
	if err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, s, c.timesURL(d.String()), xhrHeaders)
	if err != nil {
		return nil, fmt.Errorf("available times: %w", err)
	}
	if err := checkAuthenticated(resp); err != nil {
		return nil, err
	}
	var p timesPayload
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return nil, unexpected("available times", err)
	}
	return p.AvailableTimes, nil
}
