package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := NewDatastoreError("failed to select rows", fmt.Errorf("connection refused"))

	assert.Equal(t, "DATASTORE: failed to select rows: connection refused", err.Error())
	assert.EqualError(t, err.Unwrap(), "connection refused")
}

func TestAppError_ErrorWithoutCause(t *testing.T) {
	err := NewValidationError("page must be >= 1")
	assert.Equal(t, "VALIDATION: page must be >= 1", err.Error())
}

func TestIsType_FollowsWrapChain(t *testing.T) {
	inner := NewInvalidPatternError("[abc", fmt.Errorf("missing closing ]"))
	wrapped := fmt.Errorf("search failed: %w", inner)

	assert.True(t, IsType(wrapped, ErrorTypeInvalidPattern))
	assert.False(t, IsType(wrapped, ErrorTypeDatastore))
	assert.Equal(t, ErrorTypeInvalidPattern, TypeOf(wrapped))
}

func TestIsType_PlainErrors(t *testing.T) {
	assert.False(t, IsType(nil, ErrorTypeInternal))
	assert.False(t, IsType(fmt.Errorf("boom"), ErrorTypeInternal))
	assert.Equal(t, ErrorType(""), TypeOf(fmt.Errorf("boom")))
}

func TestNewAnalyticsFlushError(t *testing.T) {
	err := NewAnalyticsFlushError(50, fmt.Errorf("timeout"))
	assert.Contains(t, err.Error(), "failed to flush 50 analytics records")
	assert.True(t, IsType(err, ErrorTypeAnalyticsFlush))
}
