package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Empty(t, CodeOf(nil))
	assert.Equal(t, ErrCodeAuthRequired, CodeOf(ErrNoToken))
	assert.Equal(t, ErrCodeBadRequest, CodeOf(fmt.Errorf("send: %w", ErrEmptyMessage)))
	assert.Equal(t, ErrCodeNetwork, CodeOf(fmt.Errorf("dial: %w", ErrNetwork)))
	assert.Equal(t, ErrCodeMalformedResponse, CodeOf(ErrMalformedResponse))
	assert.Equal(t, ErrCodeConflict, CodeOf(ErrConflict))
	assert.Equal(t, ErrCodeUnknown, CodeOf(errors.New("boom")))
}

func TestCoreErrorUnwrapsToSentinel(t *testing.T) {
	assert.ErrorIs(t, ErrNoToken, ErrAuthRequired)
	assert.ErrorIs(t, ErrSuperseded, ErrNotConnected)
	assert.NotErrorIs(t, ErrEmptyMessage, ErrAuthRequired)
}

func TestCloseCode(t *testing.T) {
	assert.Equal(t, StatusNormalClosure, CloseCode(fmt.Errorf("read: %w", &CloseError{Code: StatusNormalClosure})))
	assert.Equal(t, StatusAbnormalClosure, CloseCode(errors.New("eof")))
}
