package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/ai"
	"github.com/troikatech/voice-ivr/pkg/audit"
	apierrors "github.com/troikatech/voice-ivr/pkg/errors"
	"github.com/troikatech/voice-ivr/pkg/storage"
	"github.com/troikatech/voice-ivr/pkg/utils"
)

const adminTimeout = 5 * time.Second

var csvHeader = []string{"Call Time", "Direction", "From", "To", "Speaker", "Message"}

// GetLogs returns the most recent calls with their last message. The body is
// a bare array, which is what the dashboard polls.
func (h *Handler) GetLogs(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	calls, err := h.store.ListRecentCalls(ctx, utils.ParseLimit(c))
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	if calls == nil {
		calls = []storage.CallSummary{}
	}
	c.JSON(http.StatusOK, calls)
}

// DownloadLogs streams every transcript entry as CSV.
func (h *Handler) DownloadLogs(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	rows, err := h.store.ExportAllTranscripts(ctx)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}

	h.audit.FromContext(c, audit.Entry{Action: audit.ActionExport, ResourceType: "transcripts", Fields: []zap.Field{zap.Int("rows", len(rows))}})

	filename := fmt.Sprintf("call_logs_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment;filename="+filename)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(csvHeader); err != nil {
		h.logger.Error("CSV export failed", zap.Error(err))
		return
	}
	for _, r := range rows {
		record := []string{
			r.CallTime.Format(time.RFC3339),
			string(r.Direction),
			r.From,
			r.To,
			string(r.Speaker),
			r.Message,
		}
		if err := w.Write(record); err != nil {
			h.logger.Error("CSV export failed", zap.Error(err))
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.logger.Error("CSV export failed", zap.Error(err))
	}
}

type SubmitQueryRequest struct {
	Query string `json:"query" binding:"required"`
	User  string `json:"user"`
}

func (h *Handler) SubmitQuery(c *gin.Context) {
	var req SubmitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "query is required")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		apierrors.BadRequest(c, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	q, err := h.store.RecordFlaggedQuery(ctx, strings.TrimSpace(req.User), req.Query)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	h.audit.FromContext(c, audit.Entry{Actor: q.User, Action: audit.ActionSubmitQuery, ResourceType: "query", ResourceID: fmt.Sprint(q.ID)})
	c.JSON(http.StatusCreated, gin.H{"status": "success", "query": q})
}

func (h *Handler) ListQueries(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	limit := utils.ParseLimit(c)
	queries, err := h.store.ListFlaggedQueries(ctx, limit)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	if queries == nil {
		queries = []storage.FlaggedQuery{}
	}
	c.JSON(http.StatusOK, utils.ListResponse{Data: queries, Limit: limit, Count: len(queries)})
}

func (h *Handler) ListSuspiciousActivity(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	limit := utils.ParseLimit(c)
	activity, err := h.store.ListSuspiciousActivity(ctx, limit)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	if activity == nil {
		activity = []storage.SuspiciousActivity{}
	}
	c.JSON(http.StatusOK, utils.ListResponse{Data: activity, Limit: limit, Count: len(activity)})
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":            stats,
		"live_subscribers": h.hub.Subscribers(),
	})
}

type CallDetailResponse struct {
	Call        *storage.Call        `json:"call"`
	Transcripts []storage.Transcript `json:"transcripts"`
}

func (h *Handler) GetCall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	call, transcripts, ok := h.loadCall(ctx, c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, CallDetailResponse{Call: call, Transcripts: transcripts})
}

// SummarizeCall generates a summary from the transcript and stores it on the call.
func (h *Handler) SummarizeCall(c *gin.Context) {
	if h.summarizer == nil {
		apierrors.ServiceUnavailable(c, "no completion provider configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	call, transcripts, ok := h.loadCall(ctx, c)
	if !ok {
		return
	}
	if len(transcripts) == 0 {
		apierrors.BadRequest(c, "call has no transcript to summarize")
		return
	}

	messages := make([]ai.Message, 0, len(transcripts))
	for _, t := range transcripts {
		messages = append(messages, ai.Message{Role: ai.Role(t.Role), Content: t.Message})
	}

	resp, err := h.summarizer.SummarizeCall(ctx, &ai.SummarizeRequest{
		CallSID:    call.CallID,
		Transcript: messages,
	})
	if err != nil {
		h.logger.Warn("Call summary failed", zap.String("call_sid", call.CallID), zap.Error(err))
		apierrors.ServiceUnavailable(c, "summary generation failed")
		return
	}

	if err := h.store.UpdateCallSummary(ctx, call.CallID, resp.Summary); err != nil {
		apierrors.InternalError(c, err, h.logger)
		return
	}
	h.audit.FromContext(c, audit.Entry{Action: audit.ActionSummarize, ResourceType: "call", ResourceID: call.CallID})
	c.JSON(http.StatusOK, gin.H{
		"call_sid": call.CallID,
		"summary":  resp.Summary,
		"provider": resp.Provider,
	})
}

func (h *Handler) loadCall(ctx context.Context, c *gin.Context) (*storage.Call, []storage.Transcript, bool) {
	callID := c.Param("call_sid")
	call, err := h.store.GetCall(ctx, callID)
	if errors.Is(err, storage.ErrNotFound) {
		apierrors.NotFound(c, "call not found")
		return nil, nil, false
	}
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return nil, nil, false
	}

	transcripts, err := h.store.ListTranscripts(ctx, callID)
	if err != nil {
		apierrors.InternalError(c, err, h.logger)
		return nil, nil, false
	}
	if transcripts == nil {
		transcripts = []storage.Transcript{}
	}
	return call, transcripts, true
}

// LiveFeed upgrades to a websocket carrying dialog events.
func (h *Handler) LiveFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Live feed upgrade failed", zap.Error(err), zap.String("origin", c.GetHeader("Origin")))
		return
	}
	h.audit.FromContext(c, audit.Entry{Action: audit.ActionLiveSubscribe, ResourceType: "live_feed"})
	h.hub.Serve(conn, h.logger)
}
