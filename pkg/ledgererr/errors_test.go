package ledgererr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_FormatsWithoutCause(t *testing.T) {
	err := New(CodeApprovalRequired, ClassificationNonRetryable, "plan abc123 requires approval")
	require.Equal(t, "LEDGER/PLAN/APPROVAL_REQUIRED: plan abc123 requires approval", err.Error())
	require.Nil(t, err.Unwrap())
}

func TestWrap_FormatsWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeContentNotFound, ClassificationRetryable, "load plan content", cause)
	require.Equal(t, "LEDGER/STORE/CONTENT_NOT_FOUND: load plan content: disk full", err.Error())
	require.Equal(t, cause, err.Unwrap())
}

func TestWrap_UnwrapsThroughErrorsIs(t *testing.T) {
	cause := errors.New("sentinel")
	err := Wrap(CodeHandlerFailed, ClassificationNonRetryable, "execute failed", cause)
	require.True(t, errors.Is(err, cause))
}

func TestError_PreservesClassificationAndCode(t *testing.T) {
	err := New(CodeRiskBudgetExceeded, ClassificationNonRetryable, "budget exceeded")
	require.Equal(t, CodeRiskBudgetExceeded, err.Code)
	require.Equal(t, ClassificationNonRetryable, err.Classification)
}
