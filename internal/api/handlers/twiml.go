package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/internal/ivr"
)

const hangupTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

func say(a ivr.Action) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: a.Text, Language: a.Language, Voice: a.Voice}
}

// toTwiML maps a dialog reply onto TwiML verbs.
func toTwiML(r *ivr.Reply) []twiml.Element {
	verbs := make([]twiml.Element, 0, len(r.Actions))
	for _, a := range r.Actions {
		switch a.Kind {
		case ivr.ActionSay:
			verbs = append(verbs, say(a))
		case ivr.ActionGatherDigits, ivr.ActionGatherSpeech:
			g := &twiml.VoiceGather{
				Action:  a.URL,
				Method:  http.MethodPost,
				Timeout: strconv.Itoa(a.Timeout),
			}
			if a.Kind == ivr.ActionGatherSpeech {
				g.Input = "speech"
				g.Language = a.Language
			} else {
				g.NumDigits = strconv.Itoa(a.NumDigits)
			}
			if a.Text != "" {
				g.InnerElements = []twiml.Element{say(a)}
			}
			verbs = append(verbs, g)
		case ivr.ActionRedirect:
			verbs = append(verbs, &twiml.VoiceRedirect{Url: a.URL})
		case ivr.ActionHangup:
			verbs = append(verbs, &twiml.VoiceHangup{})
		}
	}
	return verbs
}

// respondTwiML always answers 200; a render failure hangs up cleanly.
func (h *Handler) respondTwiML(c *gin.Context, r *ivr.Reply) {
	body, err := twiml.Voice(toTwiML(r))
	if err != nil {
		h.logger.Error("Failed to render TwiML", zap.Error(err))
		body = hangupTwiML
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(body))
}
