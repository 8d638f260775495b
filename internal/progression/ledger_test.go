package progression

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryLedger_ApplyIsIdempotentPerRequest(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	before, after, applied, err := l.Apply(ctx, Award{UserID: "u1", RequestID: "r1", Amount: 30, Reason: "trade"})
	if err != nil || !applied || before != 0 || after != 30 {
		t.Fatalf("first apply = (%d, %d, %v, %v)", before, after, applied, err)
	}

	before, after, applied, err = l.Apply(ctx, Award{UserID: "u1", RequestID: "r1", Amount: 30, Reason: "trade"})
	if err != nil || applied || before != 30 || after != 30 {
		t.Fatalf("repeat apply = (%d, %d, %v, %v)", before, after, applied, err)
	}

	total, _ := l.Total(ctx, "u1")
	if total != 30 {
		t.Errorf("total = %d, want 30", total)
	}
}

func TestMemoryLedger_ManualGrantsStack(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, _, _, _ = l.Apply(ctx, Award{UserID: "u1", Amount: 10, Reason: "grant"})
	_, after, applied, _ := l.Apply(ctx, Award{UserID: "u1", Amount: 15, Reason: "grant"})
	if !applied || after != 25 {
		t.Errorf("after = %d applied = %v, want 25 true", after, applied)
	}

	hist, _ := l.History(ctx, "u1", 1)
	if len(hist) != 1 {
		t.Errorf("history limit not honoured: %d", len(hist))
	}
}

func TestMemoryLedger_RejectsNegative(t *testing.T) {
	_, _, _, err := NewMemoryLedger().Apply(context.Background(), Award{UserID: "u1", Amount: -1})
	if !errors.Is(err, ErrNegativeAward) {
		t.Errorf("err = %v, want ErrNegativeAward", err)
	}
}

func TestMemoryLedger_Leaderboard(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	for _, a := range []Award{
		{UserID: "b", Amount: 40},
		{UserID: "a", Amount: 40},
		{UserID: "c", Amount: 90},
	} {
		if _, _, _, err := l.Apply(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Standing{{UserID: "c", Total: 90}, {UserID: "a", Total: 40}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
