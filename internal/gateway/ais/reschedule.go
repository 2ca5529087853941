package ais

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"cloud.google.com/go/civil"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// Hidden inputs of the appointment form that must be echoed back.
var rescheduleFormFields = []string{
	"utf8",
	"authenticity_token",
	"confirmed_limit_message",
	"use_consulate_appointment_capacity",
}

// SubmitReschedule replays the appointment form for d at tod and returns the
// raw response body. The POST is never retried: a duplicate could book twice.
func (c *Client) SubmitReschedule(ctx context.Context, gs gateway.Session, d civil.Date, tod string) (string, error) {
	s, err := asSession(gs)
	if err != nil {
		return "", err
	}
	page, err := c.get(ctx, s, c.appointmentURL(), map[string]string{"Accept": acceptHTML})
	if err != nil {
		return "", fmt.Errorf("appointment page: %w", err)
	}
	if err := checkAuthenticated(page); err != nil {
		return "", err
	}
	doc, err := parseHTML(page.body)
	if err != nil {
		return "", unexpected("appointment page", err)
	}

	form := url.Values{}
	for _, name := range rescheduleFormFields {
		v, ok := inputValue(doc, name)
		if !ok {
			return "", unexpected("appointment form field "+name+" missing", nil)
		}
		form.Set(name, v)
	}
	form.Set("appointments[consulate_appointment][facility_id]", strconv.Itoa(c.cfg.Embassy.FacilityID))
	form.Set("appointments[consulate_appointment][date]", d.String())
	form.Set("appointments[consulate_appointment][time]", tod)

	c.log.Info("submitting reschedule", logx.String("date", d.String()), logx.String("time", tod))
	resp, err := c.postForm(ctx, s, c.appointmentURL(), form, map[string]string{
		"Accept":  acceptHTML,
		"Referer": c.appointmentURL(),
	})
	if err != nil {
		return "", fmt.Errorf("submit reschedule: %w", err)
	}
	if err := checkAuthenticated(resp); err != nil {
		return "", err
	}
	return string(resp.body), nil
}
