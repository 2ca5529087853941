package ais

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://ais.usvisa-info.com"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Mode selects where requests originate from.
type Mode string

const (
	// ModeLocal talks to the portal directly (proxy settings from the environment still apply).
	ModeLocal Mode = "local"
	// ModeRemote sends every request through HubAddress acting as an HTTP proxy.
	ModeRemote Mode = "remote"
)

// Embassy identifies a consulate on the portal.
type Embassy struct {
	Locale       string
	FacilityID   int
	ContinueText string
}

// Embassies lists known consulates by short code. Entries can be overridden
// field by field from the config file.
var Embassies = map[string]Embassy{
	"en-am-yr":  {Locale: "en-am", FacilityID: 122, ContinueText: "Continue"},
	"en-ca-cal": {Locale: "en-ca", FacilityID: 89, ContinueText: "Continue"},
	"en-ca-hal": {Locale: "en-ca", FacilityID: 90, ContinueText: "Continue"},
	"en-ca-mon": {Locale: "en-ca", FacilityID: 91, ContinueText: "Continue"},
	"en-ca-ott": {Locale: "en-ca", FacilityID: 92, ContinueText: "Continue"},
	"en-ca-que": {Locale: "en-ca", FacilityID: 93, ContinueText: "Continue"},
	"en-ca-tor": {Locale: "en-ca", FacilityID: 94, ContinueText: "Continue"},
	"en-ca-van": {Locale: "en-ca", FacilityID: 95, ContinueText: "Continue"},
	"en-il":     {Locale: "en-il", FacilityID: 97, ContinueText: "Continue"},
}

// LookupEmbassy returns the built-in entry for code, if any.
func LookupEmbassy(code string) (Embassy, bool) {
	e, ok := Embassies[strings.ToLower(strings.TrimSpace(code))]
	return e, ok
}

type Config struct {
	BaseURL  string
	Embassy  Embassy
	Username string
	Password string

	ScheduleID string
	GroupID    string

	UserAgent  string
	Mode       Mode
	HubAddress string

	// RequestTimeout bounds one HTTP round trip.
	RequestTimeout time.Duration
	// StepInterval is the minimum spacing between two requests.
	StepInterval time.Duration
	// RetryMax is the number of extra attempts for idempotent reads.
	RetryMax  int
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.StepInterval < 0 {
		c.StepInterval = 0
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.Username == "" || c.Password == "" {
		errs = append(errs, errors.New("username and password are required"))
	}
	if c.ScheduleID == "" {
		errs = append(errs, errors.New("schedule id is required"))
	}
	if c.GroupID == "" {
		errs = append(errs, errors.New("group id is required"))
	}
	if c.Embassy.Locale == "" || c.Embassy.FacilityID <= 0 {
		errs = append(errs, errors.New("embassy locale and facility id are required"))
	}
	switch c.Mode {
	case ModeLocal:
	case ModeRemote:
		if _, err := url.Parse(c.HubAddress); err != nil || c.HubAddress == "" {
			errs = append(errs, fmt.Errorf("remote mode needs a valid hub address: %q", c.HubAddress))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base url: %w", err))
	}
	return errors.Join(errs...)
}
