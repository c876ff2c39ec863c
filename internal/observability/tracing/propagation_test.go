package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", maxAttributeLength+10)
	attrs := SafeAttributes(
		attribute.String("route", long),
		attribute.Int("status", 200),
	)

	assert.Len(t, attrs, 2)
	assert.Len(t, attrs[0].Value.AsString(), maxAttributeLength)
	assert.Equal(t, int64(200), attrs[1].Value.AsInt64())
}

func TestSafeErrorCollapsesWhitespace(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New("scoring\n  failed\tbadly"))
	assert.EqualError(t, err, "scoring failed badly")
}
