package prompt

import (
	"errors"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(promptui.ErrAbort))
	assert.True(t, IsAborted(ErrAborted))
	assert.False(t, IsAborted(errors.New("some other error")))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	assert.ErrorIs(t, wrapError(promptui.ErrInterrupt), ErrAborted)
	assert.ErrorIs(t, wrapError(promptui.ErrAbort), ErrAborted)

	other := errors.New("boom")
	assert.Equal(t, other, wrapError(other))
}
