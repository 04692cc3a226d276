package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/errors"
	"github.com/troikatech/voice-ivr/pkg/twilio"
)

// TwilioSignature rejects webhook requests that were not signed with the
// account auth token. publicBaseURL is the scheme and host Twilio calls.
func TwilioSignature(v *twilio.Validator, publicBaseURL string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			errors.BadRequest(c, "invalid form body")
			return
		}

		fullURL := publicBaseURL + c.Request.URL.RequestURI()
		if err := v.Verify(fullURL, c.Request.PostForm, c.GetHeader(twilio.SignatureHeader)); err != nil {
			logger.Warn("Rejected unsigned webhook",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			errors.Forbidden(c, "invalid webhook signature")
			return
		}
		c.Next()
	}
}
