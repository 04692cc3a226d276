package handlers

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/internal/ivr"
	"github.com/troikatech/voice-ivr/pkg/ai"
	"github.com/troikatech/voice-ivr/pkg/audit"
	"github.com/troikatech/voice-ivr/pkg/auth"
	"github.com/troikatech/voice-ivr/pkg/env"
	"github.com/troikatech/voice-ivr/pkg/live"
	"github.com/troikatech/voice-ivr/pkg/logger"
	"github.com/troikatech/voice-ivr/pkg/storage"
)

// Summarizer produces a short summary of a finished call.
type Summarizer interface {
	SummarizeCall(ctx context.Context, req *ai.SummarizeRequest) (*ai.SummarizeResponse, error)
}

// Deps are the collaborators the handlers need. RedisClient and Summarizer
// may be nil.
type Deps struct {
	Config      *env.Config
	Engine      *ivr.Engine
	Dialer      *ivr.Dialer
	Store       storage.Gateway
	Summarizer  Summarizer
	AIManager   *ai.Manager
	Hub         *live.Hub
	Tokens      *auth.TokenIssuer
	RedisClient *redis.Client
	Logger      *zap.Logger
}

type Handler struct {
	cfg         *env.Config
	engine      *ivr.Engine
	dialer      *ivr.Dialer
	store       storage.Gateway
	summarizer  Summarizer
	aiManager   *ai.Manager
	hub         *live.Hub
	tokens      *auth.TokenIssuer
	creds       auth.Credentials
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	audit       *audit.Logger
	logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logger.Log
	}
	hub := d.Hub
	if hub == nil {
		hub = live.NewHub()
	}
	return &Handler{
		cfg:        d.Config,
		engine:     d.Engine,
		dialer:     d.Dialer,
		store:      d.Store,
		summarizer: d.Summarizer,
		aiManager:  d.AIManager,
		hub:        hub,
		tokens:     d.Tokens,
		creds: auth.Credentials{
			Username:     d.Config.AdminUsername,
			PasswordHash: d.Config.AdminPasswordHash,
		},
		redisClient: d.RedisClient,
		upgrader:    live.NewUpgrader(d.Config.AllowedOrigins()),
		audit:       audit.New(log),
		logger:      log,
	}
}
