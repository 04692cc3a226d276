// Package ivr implements the voice dialog: language menu, listen loop and
// turn handling, plus the outbound batch dialer.
package ivr

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/ai"
	"github.com/troikatech/voice-ivr/pkg/live"
	"github.com/troikatech/voice-ivr/pkg/logger"
	"github.com/troikatech/voice-ivr/pkg/session"
	"github.com/troikatech/voice-ivr/pkg/storage"
)

const (
	menuTimeout   = 10
	speechTimeout = 3

	// CustomMessageParam carries an outbound greeting override through the
	// menu URLs.
	CustomMessageParam = "custom_message"
)

// Routes are the webhook paths the engine points the provider at.
type Routes struct {
	Voice       string
	SetLanguage string
	Listen      string
	HandleInput string
}

func DefaultRoutes() Routes {
	return Routes{
		Voice:       "/voice",
		SetLanguage: "/set-language",
		Listen:      "/listen",
		HandleInput: "/handle-input",
	}
}

type EngineConfig struct {
	MaxListenRetries int
	Routes           Routes
}

type CallEvent struct {
	CallID        string
	From          string
	To            string
	Direction     string // provider value, e.g. "inbound" or "outbound-api"
	CustomMessage string
}

type LanguageEvent struct {
	CallID        string
	From          string
	Digits        string
	CustomMessage string
}

type SpeechEvent struct {
	CallID string
	From   string
	Speech string
}

type StatusEvent struct {
	CallID       string
	Status       string
	RecordingURL string
}

// Engine is the per-call dialog state machine. All state lives in the
// session store, so an Engine is safe for concurrent use across calls.
type Engine struct {
	catalog   *Catalog
	sessions  session.Store
	store     Recorder
	orch      *Orchestrator
	publisher live.Publisher
	cfg       EngineConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(catalog *Catalog, sessions session.Store, store Recorder, orch *Orchestrator, publisher live.Publisher, cfg EngineConfig, logger *zap.Logger) *Engine {
	if publisher == nil {
		publisher = live.Nop{}
	}
	if cfg.Routes == (Routes{}) {
		cfg.Routes = DefaultRoutes()
	}
	return &Engine{
		catalog:   catalog,
		sessions:  sessions,
		store:     store,
		orch:      orch,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ParseDirection maps the provider's Direction value onto a call direction.
func ParseDirection(providerDirection string) storage.Direction {
	if strings.HasPrefix(strings.ToLower(providerDirection), "outbound") {
		return storage.DirectionOutbound
	}
	return storage.DirectionInbound
}

func withCustomMessage(path, custom string) string {
	if custom == "" {
		return path
	}
	return path + "?" + url.Values{CustomMessageParam: {custom}}.Encode()
}

// StartCall records the call, discards any previous session and plays the
// language menu.
func (e *Engine) StartCall(ctx context.Context, ev CallEvent) *Reply {
	log := e.logger.With(logger.CallFields(ev.CallID, ev.From)...)

	inserted, err := e.store.RecordCallStart(ctx, storage.Call{
		CallID:    ev.CallID,
		From:      ev.From,
		To:        ev.To,
		Direction: ParseDirection(ev.Direction),
		CreatedAt: e.now(),
	})
	if err != nil {
		log.Error("Failed to record call start", zap.Error(err))
	}
	if inserted {
		log.Info("Call started", zap.String("direction", string(ParseDirection(ev.Direction))))
		e.publisher.Publish(live.Event{Type: live.EventCallStarted, CallID: ev.CallID})
	}

	if err := e.sessions.Delete(ctx, ev.CallID); err != nil {
		log.Warn("Failed to clear session", zap.Error(err))
	}

	return e.menu(ev.CustomMessage)
}

func (e *Engine) menu(custom string) *Reply {
	r := &Reply{}
	r.GatherDigits(e.catalog.MenuPrompt, e.catalog.MenuLanguage,
		withCustomMessage(e.cfg.Routes.SetLanguage, custom), 1, menuTimeout)
	r.Redirect(withCustomMessage(e.cfg.Routes.Voice, custom))
	return r
}

// SelectLanguage starts the conversation in the chosen language. An unknown
// digit re-prompts without creating a session.
func (e *Engine) SelectLanguage(ctx context.Context, ev LanguageEvent) *Reply {
	lang, ok := e.catalog.Lookup(ev.Digits)
	if !ok {
		r := &Reply{}
		r.Say(e.catalog.InvalidSelection, "", "")
		r.Redirect(withCustomMessage(e.cfg.Routes.Voice, ev.CustomMessage))
		return r
	}

	now := e.now()
	sess := &session.Session{
		CallID:    ev.CallID,
		From:      ev.From,
		Language:  ev.Digits,
		Voice:     lang.Voice,
		State:     session.StateGreeting,
		History:   []ai.Message{{Role: ai.RoleSystem, Content: lang.SystemPrompt}},
		CreatedAt: now,
	}

	greeting := lang.Greeting
	if ev.CustomMessage != "" {
		greeting = ev.CustomMessage
	}

	sess.State = session.StateListening
	e.save(ctx, sess)

	e.logger.Info("Language selected",
		zap.String("call_sid", ev.CallID),
		zap.String("language", lang.Code),
		zap.Bool("custom_greeting", ev.CustomMessage != ""),
	)

	r := &Reply{}
	r.GatherSpeech(greeting, lang.Code, lang.Voice, e.cfg.Routes.HandleInput, speechTimeout)
	r.Redirect(e.cfg.Routes.Listen)
	return r
}

// Listen runs after a speech gather timed out. The caller is prompted up to
// MaxListenRetries times before the call is ended.
func (e *Engine) Listen(ctx context.Context, callID, from string) *Reply {
	sess, lang := e.load(ctx, callID, from)

	if sess.State == session.StateEnded {
		return (&Reply{}).Hangup()
	}

	sess.NoInput++
	if e.cfg.MaxListenRetries > 0 && sess.NoInput > e.cfg.MaxListenRetries {
		sess.State = session.StateEnded
		e.save(ctx, sess)
		e.logger.Info("Ending silent call",
			zap.String("call_sid", callID),
			zap.Int("prompts", sess.NoInput-1),
		)
		r := &Reply{}
		r.Say(lang.Goodbye, lang.Code, lang.Voice)
		r.Hangup()
		return r
	}

	sess.State = session.StateListening
	e.save(ctx, sess)

	r := &Reply{}
	r.GatherSpeech("", lang.Code, lang.Voice, e.cfg.Routes.HandleInput, speechTimeout)
	r.Say(lang.ListenPrompt, lang.Code, lang.Voice)
	r.Redirect(e.cfg.Routes.Listen)
	return r
}

// HandleSpeech answers one recognised caller utterance.
func (e *Engine) HandleSpeech(ctx context.Context, ev SpeechEvent) *Reply {
	speech := strings.TrimSpace(ev.Speech)
	if speech == "" {
		return (&Reply{}).Redirect(e.cfg.Routes.Listen)
	}

	sess, lang := e.load(ctx, ev.CallID, ev.From)
	if sess.State == session.StateEnded {
		return (&Reply{}).Hangup()
	}

	sess.State = session.StateResponding
	out := e.orch.Respond(ctx, sess, lang, speech)

	sess.NoInput = 0
	sess.State = session.StateListening
	e.save(ctx, sess)

	r := &Reply{}
	r.GatherSpeech(out.Text, lang.Code, lang.Voice, e.cfg.Routes.HandleInput, speechTimeout)
	r.Redirect(e.cfg.Routes.Listen)
	return r
}

// terminalStatuses are provider call statuses after which no webhook follows.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// EndCall handles the provider's status callback. Terminal statuses leave an
// ended tombstone in the session store.
func (e *Engine) EndCall(ctx context.Context, ev StatusEvent) {
	log := e.logger.With(zap.String("call_sid", ev.CallID), zap.String("status", ev.Status))

	if ev.RecordingURL != "" {
		if err := e.store.UpdateCallRecording(ctx, ev.CallID, ev.RecordingURL); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error("Failed to store recording reference", zap.Error(err))
		}
	}

	e.publisher.Publish(live.Event{Type: live.EventCallStatus, CallID: ev.CallID, Status: ev.Status})

	if terminalStatuses[strings.ToLower(ev.Status)] {
		// A tombstone rather than a delete, so a turn still waiting on the
		// completion endpoint cannot resurrect the session.
		if err := e.sessions.End(ctx, ev.CallID); err != nil {
			log.Warn("Failed to end session", zap.Error(err))
		}
		log.Info("Call ended")
	}
}

// load returns the call's session, or a fresh one in the default language
// when none exists.
func (e *Engine) load(ctx context.Context, callID, from string) (*session.Session, Language) {
	sess, err := e.sessions.Get(ctx, callID)
	if err == nil {
		if sess.From == "" {
			sess.From = from
		}
		_, lang := e.catalog.Resolve(sess.Language)
		return sess, lang
	}
	if !errors.Is(err, session.ErrNotFound) {
		e.logger.Warn("Session lookup failed, using default language", zap.String("call_sid", callID), zap.Error(err))
	}

	key, lang := e.catalog.Resolve(e.catalog.DefaultLanguage)
	return &session.Session{
		CallID:    callID,
		From:      from,
		Language:  key,
		Voice:     lang.Voice,
		State:     session.StateListening,
		History:   []ai.Message{{Role: ai.RoleSystem, Content: lang.SystemPrompt}},
		CreatedAt: e.now(),
	}, lang
}

func (e *Engine) save(ctx context.Context, sess *session.Session) {
	sess.UpdatedAt = e.now()
	err := e.sessions.Save(ctx, sess)
	switch {
	case errors.Is(err, session.ErrEnded):
		e.logger.Debug("Call ended during turn, session not saved", zap.String("call_sid", sess.CallID))
	case err != nil:
		e.logger.Error("Failed to save session", zap.String("call_sid", sess.CallID), zap.Error(err))
	}
}
