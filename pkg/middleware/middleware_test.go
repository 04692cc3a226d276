package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/auth"
	"github.com/troikatech/voice-ivr/pkg/twilio"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func TestAuthMiddleware(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "voice-ivr", "voice-ivr-admin", time.Hour)
	token, _, err := issuer.Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	r := gin.New()
	r.GET("/api/logs", AuthMiddleware(issuer), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("admin_user"))
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "admin" {
				t.Errorf("admin_user = %q", w.Body.String())
			}
		})
	}
}

func TestTraceMiddlewareEchoesHeaders(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/health", ok)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(traceIDHeader, "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(traceIDHeader); got != "trace-abc" {
		t.Errorf("trace id = %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("request id not generated")
	}
}

func TestSecurityHeadersAndSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(), RequestSizeLimit(16))
	r.POST("/voice", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d", w.Code)
	}
}

func TestValidateCallIDParam(t *testing.T) {
	r := gin.New()
	r.GET("/api/calls/:call_sid", ValidateCallIDParam("call_sid"), ok)

	tests := []struct {
		path string
		want int
	}{
		{"/api/calls/CA0123456789abcdef", http.StatusOK},
		{"/api/calls/call_1-a", http.StatusOK},
		{"/api/calls/bad%20id", http.StatusBadRequest},
		{"/api/calls/" + strings.Repeat("a", 65), http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func twilioSign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioSignature(t *testing.T) {
	const base = "https://ivr.example.com"
	r := gin.New()
	r.POST("/voice", TwilioSignature(twilio.NewValidator("token"), base, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, c.PostForm("CallSid"))
	})

	form := url.Values{"CallSid": {"CA1"}, "From": {"+919876543210"}}
	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(twilio.SignatureHeader, sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(twilioSign("token", base+"/voice", form)); w.Code != http.StatusOK || w.Body.String() != "CA1" {
		t.Fatalf("signed request: status %d body %q", w.Code, w.Body.String())
	}
	if w := send(twilioSign("other", base+"/voice", form)); w.Code != http.StatusForbidden {
		t.Fatalf("bad signature status = %d", w.Code)
	}
	if w := send(""); w.Code != http.StatusForbidden {
		t.Fatalf("missing signature status = %d", w.Code)
	}
}
