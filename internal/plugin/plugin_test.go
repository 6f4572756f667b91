package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
)

func TestResolveUsesBuiltin(t *testing.T) {
	calls := 0
	r := New(nil)
	r.Register("noop", func(options map[string]any, b pipeline.Builder) (pipeline.Processor, error) {
		calls++
		return pipeline.ProcessorFunc(func(ctx context.Context, m *module.Module, options map[string]any, b pipeline.Builder) error {
			return nil
		}), nil
	})
	proc, err := r.Resolve(context.Background(), "noop", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if proc == nil {
		t.Fatalf("expected a processor")
	}
	if calls != 1 {
		t.Errorf("constructor called %d times, want 1", calls)
	}
}

func TestResolveWithoutInstallHookFails(t *testing.T) {
	r := New(nil)
	_, err := r.Resolve(context.Background(), "missing-plugin", nil, nil)
	if err == nil {
		t.Fatalf("expected error for unresolvable plugin with no install hook")
	}
}

func TestResolveRemembersInstallFailure(t *testing.T) {
	var attempts int32
	r := New(func(ctx context.Context, pkg string) error {
		atomic.AddInt32(&attempts, 1)
		return context.DeadlineExceeded
	})

	_, err1 := r.Resolve(context.Background(), "flaky-plugin", nil, nil)
	if err1 == nil {
		t.Fatalf("expected first install to fail")
	}
	_, err2 := r.Resolve(context.Background(), "flaky-plugin", nil, nil)
	if err2 == nil {
		t.Fatalf("expected second resolve to also fail")
	}
	if attempts != 1 {
		t.Errorf("install attempted %d times, want 1 (failure should be remembered, not retried)", attempts)
	}
}

func TestResolveSingleFlightsConcurrentInstalls(t *testing.T) {
	var attempts int32
	start := make(chan struct{})
	r := New(func(ctx context.Context, pkg string) error {
		atomic.AddInt32(&attempts, 1)
		<-start
		return nil // "installed" but no constructor registered, so Resolve still errors
	})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Resolve(context.Background(), "shared-plugin", nil, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	if attempts != 1 {
		t.Errorf("install attempted %d times concurrently, want exactly 1", attempts)
	}
	for i, err := range errs {
		if err == nil {
			t.Errorf("resolve %d: expected error (installed but unregistered), got nil", i)
		}
	}
}
