package ivr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/troikatech/voice-ivr/pkg/logger"
	"github.com/troikatech/voice-ivr/pkg/metrics"
	"github.com/troikatech/voice-ivr/pkg/storage"
	"github.com/troikatech/voice-ivr/pkg/twilio"
	"github.com/troikatech/voice-ivr/pkg/validation"
)

var (
	ErrNoNumbers         = errors.New("at least one phone number is required")
	ErrInvalidWebhookURL = errors.New("webhook_url must be an absolute http(s) URL")
	ErrNoCallerID        = errors.New("TWILIO_PHONE_NUMBER not configured in environment")
)

// CallCreator places one outbound call. *twilio.Client implements it.
type CallCreator interface {
	CreateCall(ctx context.Context, req twilio.CreateCallRequest) (*twilio.CreateCallResponse, error)
}

type DialerConfig struct {
	From           string // caller id presented to every destination
	StatusCallback string
	MaxConcurrency int
}

type Batch struct {
	Numbers       []string
	WebhookURL    string
	CustomMessage string
}

type DialFailure struct {
	Number string `json:"number"`
	Error  string `json:"error"`
}

type DialedCall struct {
	Number  string `json:"number"`
	CallSID string `json:"call_sid"`
}

type BatchResult struct {
	Message    string        `json:"message"`
	Successful []string      `json:"successful"`
	Failed     []DialFailure `json:"failed"`
	Calls      []DialedCall  `json:"calls"`
	Total      int           `json:"total"`
}

// Dialer initiates outbound batches. One bad number never fails the batch.
type Dialer struct {
	creator CallCreator
	store   Recorder
	cfg     DialerConfig
	logger  *zap.Logger
}

func NewDialer(creator CallCreator, store Recorder, cfg DialerConfig, logger *zap.Logger) *Dialer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Dialer{creator: creator, store: store, cfg: cfg, logger: logger}
}

// CallbackURL appends the custom greeting to webhookURL.
func CallbackURL(webhookURL, customMessage string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidWebhookURL
	}
	if customMessage != "" {
		q := u.Query()
		q.Set(CustomMessageParam, customMessage)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type dialResult struct {
	sid string
	err error
}

// Dial calls every number in b concurrently. The returned error is only set
// for batch-level problems; per-number failures are reported in the result,
// which keeps input order.
func (d *Dialer) Dial(ctx context.Context, b Batch) (*BatchResult, error) {
	if len(b.Numbers) == 0 {
		return nil, ErrNoNumbers
	}
	callback, err := CallbackURL(b.WebhookURL, b.CustomMessage)
	if err != nil {
		return nil, err
	}

	results := make([]dialResult, len(b.Numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, number := range b.Numbers {
		g.Go(func() error {
			sid, err := d.dialOne(gctx, number, callback)
			results[i] = dialResult{sid: sid, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{
		Successful: []string{},
		Failed:     []DialFailure{},
		Calls:      []DialedCall{},
		Total:      len(b.Numbers),
	}
	for i, number := range b.Numbers {
		if results[i].err != nil {
			res.Failed = append(res.Failed, DialFailure{Number: number, Error: results[i].err.Error()})
			continue
		}
		res.Successful = append(res.Successful, number)
		res.Calls = append(res.Calls, DialedCall{Number: number, CallSID: results[i].sid})
	}

	res.Message = fmt.Sprintf("Initiated %d calls.", len(res.Successful))
	if len(res.Failed) > 0 {
		res.Message += fmt.Sprintf(" Failed: %d", len(res.Failed))
	}
	return res, nil
}

func (d *Dialer) dialOne(ctx context.Context, number, callback string) (string, error) {
	to, err := validation.NormalizeE164(number)
	if err != nil {
		return "", err
	}
	if d.cfg.From == "" {
		return "", ErrNoCallerID
	}

	resp, err := d.creator.CreateCall(ctx, twilio.CreateCallRequest{
		From:           d.cfg.From,
		To:             to,
		WebhookURL:     callback,
		StatusCallback: d.cfg.StatusCallback,
	})
	metrics.RecordOutboundCall(ctx, err == nil)
	if err != nil {
		d.logger.Warn("Outbound call failed", logger.MaskPhone("to", to), zap.Error(err))
		return "", err
	}

	if _, err := d.store.RecordCallStart(ctx, storage.Call{
		CallID:    resp.Sid,
		From:      d.cfg.From,
		To:        to,
		Direction: storage.DirectionOutbound,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		d.logger.Error("Failed to record outbound call", zap.String("call_sid", resp.Sid), zap.Error(err))
	}
	d.logger.Info("Outbound call initiated", zap.String("call_sid", resp.Sid), logger.MaskPhone("to", to))
	return resp.Sid, nil
}
