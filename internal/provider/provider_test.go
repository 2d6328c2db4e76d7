package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestError_Transient(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindTimeout, true},
		{KindRateLimited, true},
		{KindConnection, true},
		{KindUnknown, true},
		{KindAuth, false},
		{KindBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := &Error{Kind: tt.kind, Backend: "test", Cause: errors.New("boom")}
			if got := e.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&Error{Kind: KindTimeout, Backend: "test", Cause: errors.New("slow")}) {
		t.Error("timeout should be transient")
	}
	if IsTransient(&Error{Kind: KindAuth, Backend: "test", Cause: errors.New("denied")}) {
		t.Error("auth failure should not be transient")
	}
	// Wrapped provider errors classify through errors.As.
	wrapped := fmt.Errorf("stage failed: %w", &Error{Kind: KindBadRequest, Backend: "test", Cause: errors.New("bad")})
	if IsTransient(wrapped) {
		t.Error("wrapped bad_request should not be transient")
	}
	// Unclassified errors default to transient.
	if !IsTransient(errors.New("connection reset by peer")) {
		t.Error("unclassified error should default to transient")
	}
}

func TestClassifyContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	e := classifyContext(ctx, "test")
	if e == nil {
		t.Fatal("expired context should classify")
	}
	if e.Kind != KindTimeout {
		t.Errorf("Kind = %v, want KindTimeout", e.Kind)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	e = classifyContext(ctx2, "test")
	if e == nil || e.Kind != KindConnection {
		t.Errorf("canceled context should classify as connection, got %v", e)
	}

	if classifyContext(context.Background(), "test") != nil {
		t.Error("live context should not classify")
	}
}

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"API returned unexpected status code: 429", KindRateLimited},
		{"rate limit reached for requests", KindRateLimited},
		{"request timeout after 30s", KindTimeout},
		{"API returned unexpected status code: 503", KindTimeout},
		{"API returned unexpected status code: 401", KindAuth},
		{"Incorrect API key provided", KindAuth},
		{"API returned unexpected status code: 400", KindBadRequest},
		{"something odd happened", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			e := classifyOpenAIError(errors.New(tt.msg))
			if e.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := &Error{Kind: KindTimeout, Backend: "test", Cause: cause}
	if !errors.Is(e, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}
