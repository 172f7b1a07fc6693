package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesComponentAndCode(t *testing.T) {
	err := New("hub/publish", CodePipeline, WithMessage("history append failed"))

	require.Contains(t, err.Error(), "component=hub/publish")
	require.Contains(t, err.Error(), "code=pipeline_error")
	require.Contains(t, err.Error(), `message="history append failed"`)
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("router/notify", CodeTransport, WithCause(cause))

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), `cause="boom"`)
}

func TestCodeOfTraversesWrapping(t *testing.T) {
	inner := New("hub/unsubscribe", CodeNotFound, WithMessage("topic unknown"))
	wrapped := fmt.Errorf("handle request: %w", inner)

	require.Equal(t, CodeNotFound, CodeOf(wrapped))
	require.True(t, IsCode(wrapped, CodeNotFound))
	require.False(t, IsCode(wrapped, CodeInvalid))
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestNilErrorString(t *testing.T) {
	var err *E
	require.Equal(t, "<nil>", err.Error())
}
