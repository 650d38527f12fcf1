package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failUntil int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", 0, nil, 1, false},
		{"recovers after transient", 2, NewTransientError(errors.New("busy"), 503), 3, false},
		{"exhausts attempts", 10, NewTransientError(errors.New("busy"), 500), 3, true},
		{"permanent error", 10, errors.New("bad request"), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := Do(context.Background(), fastConfig(3), func(_ context.Context) error {
				calls++
				if calls <= tt.failUntil {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	t.Parallel()

	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	calls := 0
	v, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("429"), 429)
		}
		return "batch_1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "batch_1", v)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Capped(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second})
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 2*time.Second, backoff(5, cfg))
}

func TestFromRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := FromRetryConfig(5, 100, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, DefaultRetryConfig().MaxBackoff, cfg.MaxBackoff)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 0), true},
		{"wrapped explicit", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"api rate limit", &anthropic.Error{StatusCode: 429}, true},
		{"api overloaded", &anthropic.Error{StatusCode: 529}, true},
		{"api bad request", &anthropic.Error{StatusCode: 400}, false},
		{"net timeout", timeoutErr{}, true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
		{"plain", errors.New("invalid json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
