package gate

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Emit(ctx context.Context, o Outcome) error {
	s.calls++
	return fmt.Errorf("sink is down")
}

func TestMultiSinkContinuesPastFailure(t *testing.T) {
	failing := &failingSink{}
	capture := &captureSink{}
	multi := MultiSink{failing, capture}

	out := Outcome{ScanID: "scan-1", Status: StatusCheckedIn, At: time.Now()}
	if err := multi.Emit(context.Background(), out); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if failing.calls != 1 {
		t.Errorf("expected the failing sink to be called, got %d", failing.calls)
	}
	if len(capture.outcomes()) != 1 {
		t.Errorf("expected the next sink to still receive the outcome, got %d", len(capture.outcomes()))
	}
}

func TestRecentBufferKeepsNewestFirst(t *testing.T) {
	buf := NewRecentBuffer(3)
	for i := 1; i <= 5; i++ {
		buf.Emit(context.Background(), Outcome{ScanID: fmt.Sprintf("scan-%d", i)})
	}

	outs := buf.Snapshot()
	if len(outs) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outs))
	}
	for i, want := range []string{"scan-5", "scan-4", "scan-3"} {
		if outs[i].ScanID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, outs[i].ScanID)
		}
	}
}

func TestRecentBufferSnapshotIsACopy(t *testing.T) {
	buf := NewRecentBuffer(10)
	buf.Emit(context.Background(), Outcome{ScanID: "scan-1"})

	outs := buf.Snapshot()
	outs[0].ScanID = "mutated"

	if buf.Snapshot()[0].ScanID != "scan-1" {
		t.Error("expected snapshot mutation not to reach the buffer")
	}
}
