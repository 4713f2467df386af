package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 30, 20, 0, time.UTC) // Thursday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 1, 15, 10, 31, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 1, 16, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"30 12 * * 0", time.Date(2026, 1, 18, 12, 30, 0, 0, time.UTC)},
		{"5,50 10 * * *", time.Date(2026, 1, 15, 10, 50, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if got := s.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseScheduleErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded, want error", expr)
		}
	}
}

func TestScheduleNeverFires(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if got := s.Next(time.Now()); !got.IsZero() {
		t.Errorf("Next() = %v, want zero", got)
	}
}

type fakeArchiver struct {
	count  int64
	err    error
	cutoff time.Time
}

func (f *fakeArchiver) ArchiveAlerts(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.count, f.err
}

type fakePruner struct {
	calls  int
	cutoff time.Time
}

func (f *fakePruner) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.cutoff = before
	return 3, nil
}

func newTestRetention(a *fakeArchiver, p *fakePruner) *Retention {
	r := NewRetention(a, p, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRetentionRun(t *testing.T) {
	a := &fakeArchiver{count: 3}
	p := &fakePruner{}

	if err := newTestRetention(a, p).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !a.cutoff.Equal(want) {
		t.Errorf("archive cutoff = %v, want %v", a.cutoff, want)
	}
	if p.calls != 1 || !p.cutoff.Equal(want) {
		t.Errorf("prune calls = %d cutoff = %v", p.calls, p.cutoff)
	}
}

func TestRetentionSkipsPruneOnArchiveFailure(t *testing.T) {
	a := &fakeArchiver{err: errors.New("s3 down")}
	p := &fakePruner{}

	if err := newTestRetention(a, p).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 0 {
		t.Errorf("pruned %d times after failed archive", p.calls)
	}
}

func TestRetentionNothingArchived(t *testing.T) {
	p := &fakePruner{}
	if err := newTestRetention(&fakeArchiver{}, p).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 0 {
		t.Errorf("pruned %d times with nothing archived", p.calls)
	}
}

func TestRunCronInvalid(t *testing.T) {
	r := newTestRetention(&fakeArchiver{}, &fakePruner{})
	if err := r.RunCron(context.Background(), "bad"); err == nil {
		t.Fatal("expected error for invalid cron")
	}
}
