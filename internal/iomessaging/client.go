// Package iomessaging delivers alert notifications to the external
// messaging facade. Delivery is best-effort: a failed send warns and
// never blocks persistence of the chunk.
package iomessaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/schema"
)

// Message is the payload the facade accepts.
type Message struct {
	From        string   `json:"from"`
	Topics      []string `json:"topics"`
	ID          string   `json:"id"`
	Message     string   `json:"message"`
	SMSMessage  string   `json:"sms-message"`
	HTMLMessage string   `json:"html-message"`
	Subject     string   `json:"subject"`
	Medium      []string `json:"medium"`
}

// Client posts alert notifications to the facade. An empty URL or the
// silent flag disables it entirely.
type Client struct {
	cfg       config.MessagingConfig
	tree      *location.Tree
	http      *http.Client
	startDate time.Time
}

// NewClient creates the facade client. StartDate, when set, suppresses
// notifications for alerts dated on or before it.
func NewClient(cfg config.MessagingConfig, tree *location.Tree) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		tree: tree,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.StartDate != "" {
		t, err := time.Parse("2006-01-02", cfg.StartDate)
		if err != nil {
			return nil, NewStartDateError(cfg.StartDate, err)
		}
		c.startDate = t
	}
	return c, nil
}

// Enabled reports whether notifications go out at all.
func (c *Client) Enabled() bool {
	return c.cfg.URL != "" && !c.cfg.Silent
}

// SendAlert notifies the facade about one alert. Suppressed sends return
// nil.
func (c *Client) SendAlert(ctx context.Context, a *schema.Alert) error {
	if !c.Enabled() {
		return nil
	}
	if !c.startDate.IsZero() && !a.Date.After(c.startDate) {
		return nil
	}
	return c.post(ctx, c.build(a))
}

// build formats the notification. Topics are the cross product of the
// deployment prefix, the alert's location lineage and {reason, allDis},
// so subscribers can follow one clinic, one district or everything.
func (c *Client) build(a *schema.Alert) *Message {
	clinicName := strconv.Itoa(a.Clinic)
	if loc, ok := c.tree.Get(a.Clinic); ok {
		clinicName = loc.Name
	}
	date := a.Date.Format("2006-01-02")

	text := fmt.Sprintf(
		"%s alert %s: %s at %s on %s (duration %d days).",
		a.Type, a.AlertID, a.Reason, clinicName, date, a.Duration)
	sms := fmt.Sprintf("%s alert %s: %s at %s, %s",
		a.Type, a.AlertID, a.Reason, clinicName, date)
	html := fmt.Sprintf(
		"<p>A <b>%s</b> alert for <b>%s</b> was raised at %s on %s.</p><p>Alert id %s, duration %d days.</p>",
		a.Type, a.Reason, clinicName, date, a.AlertID, a.Duration)

	return &Message{
		From:        c.cfg.Sender,
		Topics:      c.topics(a.Clinic, a.Reason),
		ID:          a.AlertID,
		Message:     text,
		SMSMessage:  sms,
		HTMLMessage: html,
		Subject:     fmt.Sprintf("Alert %s: %s at %s", a.AlertID, a.Reason, clinicName),
		Medium:      []string{"email", "sms"},
	}
}

// topics expands {prefix} x {clinic, district, region, country} x
// {reason, allDis}.
func (c *Client) topics(clinic int, reason string) []string {
	var out []string
	for _, id := range c.lineage(clinic) {
		for _, tail := range []string{reason, "allDis"} {
			out = append(out,
				fmt.Sprintf("%s-%d-%s", c.cfg.TopicPrefix, id, tail))
		}
	}
	return out
}

// lineage walks clinic -> district -> region -> country, skipping absent
// levels (zones are not notification targets).
func (c *Client) lineage(clinic int) []int {
	var out []int
	id := clinic
	for id != 0 {
		loc, ok := c.tree.Get(id)
		if !ok {
			break
		}
		if loc.Level != location.LevelZone {
			out = append(out, loc.ID)
		}
		if loc.Level == location.LevelCountry {
			break
		}
		id = loc.Parent
	}
	return out
}

func (c *Client) post(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return NewFacadeError(c.cfg.URL, err)
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return NewFacadeError(c.cfg.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return NewFacadeError(c.cfg.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return NewFacadeError(c.cfg.URL,
			fmt.Errorf("facade returned %s", resp.Status))
	}
	return nil
}
