package twilio

import (
	"errors"
	"net/url"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's HMAC-SHA1 request signature.
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("twilio: signature header missing")
	ErrInvalidSignature = errors.New("twilio: invalid signature")
)

// Validator checks webhook signatures against the account auth token.
type Validator struct {
	rv twclient.RequestValidator
}

func NewValidator(authToken string) *Validator {
	return &Validator{rv: twclient.NewRequestValidator(authToken)}
}

// Verify checks signature for a request to fullURL with the given POST form.
// Query parameters are part of fullURL; form values are signed separately.
func (v *Validator) Verify(fullURL string, form url.Values, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	if !v.rv.Validate(fullURL, params, signature) {
		return ErrInvalidSignature
	}
	return nil
}
