package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-ivr/internal/ivr"
)

// param reads a provider parameter from the form body, then the query string.
func param(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func callSID(c *gin.Context) string {
	if sid := param(c, "CallSid"); sid != "" {
		return sid
	}
	return "unknown"
}

// Voice answers a new call with the language menu.
func (h *Handler) Voice(c *gin.Context) {
	reply := h.engine.StartCall(c.Request.Context(), ivr.CallEvent{
		CallID:        callSID(c),
		From:          param(c, "From"),
		To:            param(c, "To"),
		Direction:     param(c, "Direction"),
		CustomMessage: param(c, ivr.CustomMessageParam),
	})
	h.respondTwiML(c, reply)
}

func (h *Handler) SetLanguage(c *gin.Context) {
	reply := h.engine.SelectLanguage(c.Request.Context(), ivr.LanguageEvent{
		CallID:        callSID(c),
		From:          param(c, "From"),
		Digits:        param(c, "Digits"),
		CustomMessage: param(c, ivr.CustomMessageParam),
	})
	h.respondTwiML(c, reply)
}

func (h *Handler) Listen(c *gin.Context) {
	h.respondTwiML(c, h.engine.Listen(c.Request.Context(), callSID(c), param(c, "From")))
}

func (h *Handler) HandleInput(c *gin.Context) {
	reply := h.engine.HandleSpeech(c.Request.Context(), ivr.SpeechEvent{
		CallID: callSID(c),
		From:   param(c, "From"),
		Speech: param(c, "SpeechResult"),
	})
	h.respondTwiML(c, reply)
}

// CallStatus receives the provider's status callback; the body is ignored.
func (h *Handler) CallStatus(c *gin.Context) {
	h.engine.EndCall(c.Request.Context(), ivr.StatusEvent{
		CallID:       callSID(c),
		Status:       param(c, "CallStatus"),
		RecordingURL: param(c, "RecordingUrl"),
	})
	c.Status(http.StatusNoContent)
}
