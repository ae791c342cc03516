package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeTimer lets tests fire ticks by hand
type fakeTimer struct {
	c       chan time.Time
	started chan time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		c:       make(chan time.Time),
		started: make(chan time.Duration, 16),
	}
}

func (f *fakeTimer) Start(d time.Duration) { f.started <- d }
func (f *fakeTimer) Stop()                 {}
func (f *fakeTimer) C() <-chan time.Time   { return f.c }

func (f *fakeTimer) fire(t *testing.T) {
	t.Helper()
	select {
	case f.c <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("ticker did not wait on the timer")
	}
}

func (f *fakeTimer) expectStart(t *testing.T, want time.Duration) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != want {
			t.Fatalf("expected timer interval %v, got %v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatal("timer was not started")
	}
}

type countingFetcher struct {
	calls int32
	fail  func(n int32) bool
}

func (f *countingFetcher) FetchCurrentCode(context.Context) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fail != nil && f.fail(n) {
		return "", errors.New("backend unavailable")
	}
	return fmt.Sprintf("%06d", n), nil
}

func (f *countingFetcher) count() int32 { return atomic.LoadInt32(&f.calls) }

type codeSink struct {
	mu    sync.Mutex
	codes []string
	ch    chan string
}

func newCodeSink() *codeSink { return &codeSink{ch: make(chan string, 16)} }

func (s *codeSink) accept(code string) {
	s.mu.Lock()
	s.codes = append(s.codes, code)
	s.mu.Unlock()
	s.ch <- code
}

func (s *codeSink) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.ch:
		if got != want {
			t.Fatalf("expected code %q, got %q", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("code %q was not delivered", want)
	}
}

func (s *codeSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...)
}

func TestTOTPRefresherSchedule(t *testing.T) {
	fetcher := &countingFetcher{}
	sink := newCodeSink()
	timer := newFakeTimer()

	r := NewTOTPRefresher(fetcher, 30*time.Second, sink.accept, zaptest.NewLogger(t))
	r.timer = timer

	task := r.Start(context.Background())

	// One call right away, then one per interval.
	sink.expect(t, "000001")
	timer.expectStart(t, 30*time.Second)
	timer.fire(t)
	sink.expect(t, "000002")
	timer.expectStart(t, 30*time.Second)
	timer.fire(t)
	sink.expect(t, "000003")
	timer.expectStart(t, 30*time.Second)

	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("worker still running after Stop")
	}
	time.Sleep(20 * time.Millisecond)
	if n := fetcher.count(); n != 3 {
		t.Fatalf("expected exactly 3 fetches, got %d", n)
	}
	if codes := sink.all(); len(codes) != 3 {
		t.Fatalf("expected 3 delivered codes, got %v", codes)
	}
}

func TestTOTPRefresherKeepsPreviousCodeOnFailure(t *testing.T) {
	fetcher := &countingFetcher{fail: func(n int32) bool { return n == 2 }}
	sink := newCodeSink()
	timer := newFakeTimer()

	r := NewTOTPRefresher(fetcher, time.Minute, sink.accept, zaptest.NewLogger(t))
	r.timer = timer
	task := r.Start(context.Background())
	defer task.Stop()

	sink.expect(t, "000001")
	timer.expectStart(t, time.Minute)
	timer.fire(t)
	timer.expectStart(t, time.Minute)
	timer.fire(t)
	sink.expect(t, "000003")

	if codes := sink.all(); len(codes) != 2 {
		t.Fatalf("failed fetch must not deliver a code, got %v", codes)
	}
}

func TestRefreshTaskStopIsIdempotent(t *testing.T) {
	r := NewTOTPRefresher(&countingFetcher{}, time.Hour, nil, zaptest.NewLogger(t))
	r.timer = newFakeTimer()

	task := r.Start(context.Background())
	task.Stop()
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("expected worker to have exited")
	}

	var nilTask *RefreshTask
	nilTask.Stop()
}

func TestTOTPRefresherStopsWithContext(t *testing.T) {
	r := NewTOTPRefresher(&countingFetcher{}, time.Hour, nil, zaptest.NewLogger(t))
	r.timer = newFakeTimer()

	ctx, cancel := context.WithCancel(context.Background())
	task := r.Start(ctx)
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
}

func TestNewTOTPRefresherDefaultInterval(t *testing.T) {
	r := NewTOTPRefresher(&countingFetcher{}, 0, nil, nil)
	if r.interval != DefaultTOTPInterval {
		t.Fatalf("expected %v, got %v", DefaultTOTPInterval, r.interval)
	}
}
