package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestConfigure_KeepsZeroFields(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: time.Second})

	if got := timeouts.Short(); got != time.Second {
		t.Errorf("Short = %v, want 1s", got)
	}
	if got := timeouts.Medium(); got != timeouts.DefaultMedium {
		t.Errorf("Medium = %v, want default %v", got, timeouts.DefaultMedium)
	}
}

func TestReset(t *testing.T) {
	timeouts.Configure(timeouts.Config{Ping: time.Minute, Long: time.Hour})
	timeouts.Reset()

	if got := timeouts.Current(); got.Ping != timeouts.DefaultPing || got.Long != timeouts.DefaultLong {
		t.Errorf("Reset left %+v", got)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", ctx.Err())
	}
}
