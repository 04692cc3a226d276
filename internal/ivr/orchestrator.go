package ivr

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/ai"
	"github.com/troikatech/voice-ivr/pkg/live"
	"github.com/troikatech/voice-ivr/pkg/logger"
	"github.com/troikatech/voice-ivr/pkg/metrics"
	"github.com/troikatech/voice-ivr/pkg/session"
	"github.com/troikatech/voice-ivr/pkg/storage"
)

// ReminderInterval is how many caller turns pass between policy reminders.
const ReminderInterval = 3

// Completer turns an ordered message list into generated text.
type Completer interface {
	Complete(ctx context.Context, req *ai.CompletionRequest) (string, error)
}

// Recorder is the slice of the persistence gateway the dialog writes to.
type Recorder interface {
	RecordCallStart(ctx context.Context, call storage.Call) (bool, error)
	AppendTranscript(ctx context.Context, callID string, role storage.Role, message string) error
	RecordSuspiciousActivity(ctx context.Context, activity storage.SuspiciousActivity) error
	UpdateCallRecording(ctx context.Context, callID, recordingRef string) error
}

type OrchestratorConfig struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Reminder    string
}

// Outcome is what the caller hears after one turn.
type Outcome struct {
	Text       string
	Failed     bool
	Suspicious bool
	Rewritten  bool
}

// Orchestrator runs one caller turn through the completion endpoint.
type Orchestrator struct {
	completer Completer
	filter    *Filter
	store     Recorder
	publisher live.Publisher
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

func NewOrchestrator(completer Completer, filter *Filter, store Recorder, publisher live.Publisher, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if publisher == nil {
		publisher = live.Nop{}
	}
	return &Orchestrator{
		completer: completer,
		filter:    filter,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// needsReminder reports whether a reminder precedes the next caller turn.
func needsReminder(priorUserTurns int) bool {
	return priorUserTurns > 0 && priorUserTurns%ReminderInterval == 0
}

// Respond answers utterance within sess. On success the user and assistant
// messages are appended to sess.History; on failure History is untouched and
// the fallback message is returned.
func (o *Orchestrator) Respond(ctx context.Context, sess *session.Session, lang Language, utterance string) Outcome {
	log := o.logger.With(logger.CallFields(sess.CallID, sess.From)...)

	o.persist(ctx, log, sess.CallID, storage.RoleUser, utterance)

	messages := make([]ai.Message, len(sess.History), len(sess.History)+2)
	copy(messages, sess.History)
	if needsReminder(sess.UserTurns()) && o.cfg.Reminder != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: o.cfg.Reminder})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: utterance})

	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	raw, err := o.completer.Complete(callCtx, &ai.CompletionRequest{
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		log.Warn("Completion failed, speaking fallback", zap.Error(err))
		metrics.RecordDialogTurn(ctx, lang.Code, "fallback")
		return Outcome{Text: lang.Fallback, Failed: true}
	}

	verdict := o.filter.Apply(raw, lang.Fallback)
	if verdict.Suspicious {
		metrics.RecordSuspicious(ctx, lang.Code)
		activity := storage.SuspiciousActivity{
			CallID:      sess.CallID,
			PhoneNumber: sess.From,
			Reason:      utterance,
		}
		if err := o.store.RecordSuspiciousActivity(ctx, activity); err != nil {
			log.Error("Failed to record suspicious activity", zap.Error(err))
		}
		o.publisher.Publish(live.Event{Type: live.EventSuspicious, CallID: sess.CallID, Message: utterance})
	}
	if verdict.Rewritten {
		log.Info("Reply rewritten for opinion leakage")
	}

	sess.History = append(messages, ai.Message{Role: ai.RoleAssistant, Content: verdict.Text})
	o.persist(ctx, log, sess.CallID, storage.RoleAssistant, verdict.Text)
	metrics.RecordDialogTurn(ctx, lang.Code, "answered")

	return Outcome{Text: verdict.Text, Suspicious: verdict.Suspicious, Rewritten: verdict.Rewritten}
}

func (o *Orchestrator) persist(ctx context.Context, log *zap.Logger, callID string, role storage.Role, message string) {
	if err := o.store.AppendTranscript(ctx, callID, role, message); err != nil {
		log.Error("Failed to append transcript", zap.String("role", string(role)), zap.Error(err))
	}
	o.publisher.Publish(live.Event{Type: live.EventTranscript, CallID: callID, Role: string(role), Message: message})
}
