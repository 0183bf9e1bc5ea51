package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesExistingCode(t *testing.T) {
	inner := New(CodeUnauthorized, "invalid credentials")
	outer := Wrap(inner, CodeInternal, "login failed")

	assert.Equal(t, CodeUnauthorized, CodeOf(outer))
	assert.True(t, HasCode(outer, CodeUnauthorized))
	assert.False(t, HasCode(outer, CodeInternal))
}

func TestWrap_KeepsSentinelReachable(t *testing.T) {
	sentinel := errors.New("code expired")
	wrapped := Wrap(sentinel, CodeInvalidInput, "verification failed")

	assert.ErrorIs(t, wrapped, sentinel)
	assert.True(t, HasCode(wrapped, CodeInvalidInput))
}

func TestWrap_ThroughFmtErrorf(t *testing.T) {
	inner := New(CodeNotFound, "account not found")
	wrapped := fmt.Errorf("lookup: %w", inner)

	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(CodeConflict, "email taken")
	b := New(CodeConflict, "pending application exists")

	assert.ErrorIs(t, a, b, "domain errors compare by code")
	assert.NotErrorIs(t, a, New(CodeNotFound, "x"))
}

func TestCodeOf_NonDomainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestError_MessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeRateLimited}
	assert.Equal(t, string(CodeRateLimited), err.Error())

	err = &Error{Code: CodeRateLimited, Message: "too many attempts"}
	assert.Equal(t, "too many attempts", err.Error())
}
