package proxy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReasonRecoverable(t *testing.T) {
	t.Parallel()

	require.True(t, ReasonTransientQuota.Recoverable())
	require.True(t, ReasonBlocked.Recoverable())
	require.True(t, ReasonConfiguration.Recoverable())
	require.False(t, ReasonTimeout.Recoverable())
	require.False(t, ReasonNetwork.Recoverable())
	require.False(t, ReasonUnknown.Recoverable())
}

func TestRawHTMLDefaultsContentType(t *testing.T) {
	t.Parallel()

	out := RawHTML("<p>x</p>", "")
	require.Equal(t, OutcomeRawHTML, out.Kind)
	require.Equal(t, DefaultContentType, out.ContentType)

	out = RawHTML("{}", "application/json")
	require.Equal(t, "application/json", out.ContentType)
	require.True(t, out.OK())
}

func TestAsFailureKeepsClassification(t *testing.T) {
	t.Parallel()

	inner := &Failure{Reason: ReasonBlocked, Message: "denied"}
	wrapped := fmt.Errorf("attempt: %w", inner)

	got := AsFailure(StageRender, wrapped)
	require.Same(t, inner, got)
	require.Equal(t, StageRender, got.Stage)
}

func TestAsFailureWrapsUnknown(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	got := AsFailure(StageStatic, cause)
	require.Equal(t, ReasonUnknown, got.Reason)
	require.Equal(t, StageStatic, got.Stage)
	require.ErrorIs(t, got, cause)
	require.Nil(t, AsFailure(StageStatic, nil))
}

func TestFailureError(t *testing.T) {
	t.Parallel()

	f := NewFailure(StageStatic, ReasonUpstreamStatus, "upstream returned an error", errors.New("Not Found"))
	f.UpstreamStatus = 404
	require.Equal(t, "staticFetch: upstream-status: upstream returned an error (status 404): Not Found", f.Error())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "abc", Truncate("abc", 10))
	require.Equal(t, "çã", Truncate("çãé", 2))
}
