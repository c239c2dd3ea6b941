package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAwaitPollsUntilDone(t *testing.T) {
	const pending = 4

	polls := 0
	result, err := Await(context.Background(), time.Millisecond, time.Second,
		func(ctx context.Context) (Status, string, error) {
			polls++
			if polls <= pending {
				return StatusRunning, "", nil
			}
			return StatusDone, "video.mp4", nil
		})
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if result != "video.mp4" {
		t.Fatalf("result = %q, want video.mp4", result)
	}
	if polls != pending+1 {
		t.Fatalf("polled %d times, want %d", polls, pending+1)
	}
}

func TestAwaitReturnsProviderError(t *testing.T) {
	wantErr := fmt.Errorf("render failed: out of memory")
	_, err := Await(context.Background(), time.Millisecond, time.Second,
		func(ctx context.Context) (Status, string, error) {
			return StatusFailed, "", wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	polls := 0
	_, err := Await(context.Background(), time.Millisecond, 20*time.Millisecond,
		func(ctx context.Context) (Status, string, error) {
			polls++
			return StatusQueued, "", nil
		})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if polls == 0 {
		t.Fatalf("loop never polled before timing out")
	}
}
