package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pdfqa/internal/apperrors"
)

// gatedAnswerer answers each question only after its gate is closed.
type gatedAnswerer struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	running int32
	peak    int32
}

func newGatedAnswerer(questions ...string) *gatedAnswerer {
	a := &gatedAnswerer{gates: make(map[string]chan struct{})}
	for _, q := range questions {
		a.gates[q] = make(chan struct{})
	}
	return a
}

func (a *gatedAnswerer) release(q string) { close(a.gates[q]) }

func (a *gatedAnswerer) Ask(_ context.Context, q string) (string, error) {
	n := atomic.AddInt32(&a.running, 1)
	for {
		p := atomic.LoadInt32(&a.peak)
		if n <= p || atomic.CompareAndSwapInt32(&a.peak, p, n) {
			break
		}
	}
	defer atomic.AddInt32(&a.running, -1)

	a.mu.Lock()
	gate := a.gates[q]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if q == "fail?" {
		return "", apperrors.ErrBackendUnavailable
	}
	return "answer to " + q, nil
}

func receive(t *testing.T, d *Dispatcher) Result {
	t.Helper()
	select {
	case r := <-d.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Result{}
	}
}

func TestDispatcher_OutOfOrderCompletion(t *testing.T) {
	questions := []string{"first?", "second?", "third?"}
	a := newGatedAnswerer(questions...)
	d := New(a, 4, nil)
	conv := NewConversation()

	for _, q := range questions {
		turn := conv.Begin(q)
		if err := d.Submit(turn.ID, q); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	if conv.Pending() != 3 {
		t.Fatalf("expected 3 pending turns, got %d", conv.Pending())
	}

	for i := len(questions) - 1; i >= 0; i-- {
		a.release(questions[i])
		if !conv.Finalize(receive(t, d)) {
			t.Fatal("result did not match a pending turn")
		}
	}

	for _, turn := range conv.Turns() {
		if turn.State != Finalized {
			t.Errorf("turn %q still pending", turn.Question)
		}
		if turn.Answer != "answer to "+turn.Question {
			t.Errorf("turn %q got answer %q", turn.Question, turn.Answer)
		}
	}
}

func TestDispatcher_ErrorsAttachToTheirTurn(t *testing.T) {
	d := New(newGatedAnswerer(), 1, nil)
	conv := NewConversation()
	ok := conv.Begin("fine?")
	bad := conv.Begin("fail?")
	_ = d.Submit(bad.ID, bad.Question)
	_ = d.Submit(ok.ID, ok.Question)
	conv.Finalize(receive(t, d))
	conv.Finalize(receive(t, d))

	turns := conv.Turns()
	if turns[0].Err != nil || turns[0].Answer == "" {
		t.Errorf("successful turn polluted: %+v", turns[0])
	}
	if !errors.Is(turns[1].Err, apperrors.ErrBackendUnavailable) {
		t.Errorf("failed turn should carry its error, got %+v", turns[1])
	}
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	const n = 10
	var questions []string
	for i := 0; i < n; i++ {
		questions = append(questions, string(rune('a'+i))+"?")
	}
	a := newGatedAnswerer(questions...)
	d := New(a, 2, nil)
	for i, q := range questions {
		if err := d.Submit(string(rune('0'+i)), q); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&a.running); got > 2 {
		t.Errorf("expected at most 2 running, got %d", got)
	}

	go func() {
		for _, q := range questions {
			a.release(q)
		}
	}()
	for i := 0; i < n; i++ {
		receive(t, d)
	}
	d.Wait()
	if peak := atomic.LoadInt32(&a.peak); peak > 2 {
		t.Errorf("concurrency peaked at %d", peak)
	}
}

func TestDispatcher_SubmitDoesNotBlock(t *testing.T) {
	a := newGatedAnswerer("slow?")
	d := New(a, 1, nil)
	done := make(chan struct{})
	go func() {
		_ = d.Submit("1", "slow?")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a running question")
	}
	a.release("slow?")
	receive(t, d)
}

func TestDispatcher_RejectsEmptyQuestion(t *testing.T) {
	d := New(newGatedAnswerer(), 1, nil)
	if err := d.Submit("1", "   "); !errors.Is(err, apperrors.ErrEmptyQuestion) {
		t.Errorf("expected empty question error, got %v", err)
	}
	select {
	case r := <-d.Results():
		t.Errorf("unexpected result %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

type panicAnswerer struct{}

func (panicAnswerer) Ask(context.Context, string) (string, error) { panic("boom") }

func TestDispatcher_PanicBecomesError(t *testing.T) {
	d := New(panicAnswerer{}, 1, nil)
	_ = d.Submit("1", "q?")
	if r := receive(t, d); r.Err == nil || r.TurnID != "1" {
		t.Errorf("expected an error result for turn 1, got %+v", r)
	}
}

func TestConversation_FinalizeExactlyOnce(t *testing.T) {
	conv := NewConversation()
	turn := conv.Begin("q?")
	if !conv.Finalize(Result{TurnID: turn.ID, Answer: "first"}) {
		t.Fatal("first finalize should apply")
	}
	if conv.Finalize(Result{TurnID: turn.ID, Answer: "second"}) {
		t.Error("second finalize must be ignored")
	}
	if conv.Finalize(Result{TurnID: "unknown", Answer: "x"}) {
		t.Error("unknown turn must be ignored")
	}
	if got := conv.Turns()[0].Answer; got != "first" {
		t.Errorf("answer replaced twice, got %q", got)
	}
}

func TestConversation_TurnsIsACopy(t *testing.T) {
	conv := NewConversation()
	conv.Begin("q?")
	turns := conv.Turns()
	turns[0].Question = "changed"
	if conv.Turns()[0].Question != "q?" {
		t.Error("callers must not be able to mutate turns")
	}
}
