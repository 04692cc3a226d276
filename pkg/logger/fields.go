package logger

import (
	"go.uber.org/zap"
)

// CallFields returns the fields every call-scoped log line carries, with the
// caller number masked.
func CallFields(callID, from string) []zap.Field {
	return []zap.Field{
		zap.String("call_sid", callID),
		MaskPhoneIfPresent("from", from),
	}
}
