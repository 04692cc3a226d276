// Package twilio wraps the Twilio REST API and webhook signature checks.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"time"

	twiliogo "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/troikatech/voice-ivr/pkg/metrics"
)

// ErrNotConfigured is returned when credentials are missing.
var ErrNotConfigured = errors.New("twilio: account sid and auth token are required")

// Status callback events requested for every outbound call.
var statusEvents = []string{"initiated", "answered", "completed"}

type Client struct {
	rest       *twiliogo.RestClient
	configured bool
}

func NewClient(accountSID, authToken string) *Client {
	return &Client{
		rest: twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		configured: accountSID != "" && authToken != "",
	}
}

type CreateCallRequest struct {
	From           string
	To             string
	WebhookURL     string // fetched by Twilio for TwiML once the call connects
	StatusCallback string
}

type CreateCallResponse struct {
	Sid    string
	Status string
}

// CreateCall places an outbound call whose dialog is driven by WebhookURL.
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.WebhookURL)
	params.SetMethod("POST")
	if req.StatusCallback != "" {
		params.SetStatusCallback(req.StatusCallback)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent(statusEvents)
	}

	start := time.Now()
	resp, err := c.rest.Api.CreateCall(params)
	metrics.RecordServiceCall(ctx, "twilio.create_call", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("twilio: create call to %s: %w", req.To, err)
	}

	out := &CreateCallResponse{}
	if resp.Sid != nil {
		out.Sid = *resp.Sid
	}
	if resp.Status != nil {
		out.Status = *resp.Status
	}
	return out, nil
}
