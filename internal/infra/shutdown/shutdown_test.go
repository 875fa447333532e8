package shutdown

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
)

func TestHandler_ReverseOrder(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())

	var order []string
	for _, name := range []string{"store", "supervisor", "http"} {
		h.OnShutdown(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	h.Trigger("test")
	if err := h.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(order, ","); got != "http,supervisor,store" {
		t.Errorf("hook order = %s", got)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after Wait()")
	}
}

func TestHandler_ErrorsJoined(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())

	ran := false
	h.OnShutdown("last", func(ctx context.Context) error {
		ran = true
		return nil
	})
	h.OnShutdown("broken", func(ctx context.Context) error {
		return errors.New("boom")
	})

	h.Trigger("test")
	err := h.Wait()
	if err == nil || !strings.Contains(err.Error(), "broken: boom") {
		t.Errorf("Wait() = %v", err)
	}
	if !ran {
		t.Error("a failing hook stopped later hooks")
	}
}

func TestHandler_TimeoutContext(t *testing.T) {
	h := NewHandler(20*time.Millisecond, logger.Discard())

	h.OnShutdown("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	h.Trigger("test")
	if err := h.Wait(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestHandler_Signal(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())

	called := make(chan struct{})
	h.OnShutdown("hook", func(ctx context.Context) error {
		close(called)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait() }()

	// Give Wait time to install the signal handler.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}
	<-called
}

func TestHandler_TriggerOnlyOnce(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())
	h.Trigger("first")
	h.Trigger("second")

	if len(h.trigger) != 1 {
		t.Errorf("pending triggers = %d, want 1", len(h.trigger))
	}
}
