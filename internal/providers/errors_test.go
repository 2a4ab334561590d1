package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":        ErrorQuota,
		"429 rate":                  ErrorRate,
		"context too long":          ErrorContext,
		"timeout":                   ErrorTransient,
		"context deadline exceeded": ErrorTransient,
		"bad request":               ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrorRate) || !Retryable(ErrorTransient) {
		t.Fatal("rate and transient errors must be retryable")
	}
	if Retryable(ErrorQuota) || Retryable(ErrorPermanent) || Retryable(ErrorContext) {
		t.Fatal("quota, permanent, and context errors must not be retried")
	}
}
