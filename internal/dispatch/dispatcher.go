package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/domain"
)

// DefaultMaxConcurrent bounds the number of questions answered at once.
const DefaultMaxConcurrent = 4

// Dispatcher answers submitted questions on background goroutines and
// delivers the outcomes on a single channel.
type Dispatcher struct {
	answerer domain.Answerer
	sem      *semaphore.Weighted
	results  chan Result
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a dispatcher running at most maxConcurrent questions at a time.
func New(answerer domain.Answerer, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		answerer: answerer,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		results:  make(chan Result, maxConcurrent),
		logger:   logger,
	}
}

// Submit starts answering question for turnID and returns immediately.
func (d *Dispatcher) Submit(turnID, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return apperrors.ErrEmptyQuestion
	}
	d.wg.Add(1)
	go d.run(turnID, question)
	return nil
}

// Results delivers one Result per accepted submission, in completion order.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Wait blocks until every accepted submission has delivered its result.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(turnID, question string) {
	defer d.wg.Done()
	ctx := context.Background()
	// Acquire only fails on a cancelled context
	_ = d.sem.Acquire(ctx, 1)

	start := time.Now()
	answer, err := d.ask(ctx, question)
	d.sem.Release(1)

	if err != nil {
		d.logger.Warn("turn failed", "turn", turnID, "error", err, "duration", time.Since(start))
	} else {
		d.logger.Info("turn answered", "turn", turnID, "duration", time.Since(start))
	}
	d.results <- Result{TurnID: turnID, Answer: answer, Err: err}
}

// ask keeps a panicking backend from taking the process down with it.
func (d *Dispatcher) ask(ctx context.Context, question string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("answerer panicked", "panic", r)
			answer, err = "", apperrors.ErrBackendUnavailable.WithMessage("internal error while answering")
		}
	}()
	return d.answerer.Ask(ctx, question)
}
