package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_SurvivesFailingCycles(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := New("test", time.Millisecond, func(ctx context.Context) error {
		n := calls.Add(1)
		switch n {
		case 1:
			return errors.New("transient")
		case 2:
			panic("boom")
		case 4:
			cancel()
		}
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	if got := calls.Load(); got < 4 {
		t.Errorf("Expected at least 4 cycles, got %d", got)
	}
}

func TestLoop_RunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cycle   Cycle
		wantErr bool
	}{
		{name: "ok", cycle: func(ctx context.Context) error { return nil }},
		{name: "error", cycle: func(ctx context.Context) error { return errors.New("failed") }, wantErr: true},
		{name: "panic", cycle: func(ctx context.Context) error { panic("nil map") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(tt.name, time.Second, tt.cycle, nil).RunOnce(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoop_StopsWhileSleeping(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	loop := New("sleepy", time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop while sleeping")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one pass, got %d", calls.Load())
	}
}
