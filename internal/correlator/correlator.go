// Package correlator fans out a batch of asynchronous requests and waits
// until every slot has been resolved, either by a decoded identifier or by
// an error.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BRO3886/docbatch/internal/decoder"
	"github.com/BRO3886/docbatch/internal/transport"
	"go.uber.org/zap"
)

// Extractor pulls the identifier out of a successful response.
type Extractor func(resp *transport.Response) (string, error)

// Outcome is the result of one request in a batch. Exactly one of ID and
// Err is set once the slot is resolved.
type Outcome struct {
	Index int
	ID    string
	Err   error
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.ID != ""
}

type Correlator struct {
	transport transport.Transport
	extract   Extractor
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Correlator)

// WithTimeout bounds the wait of every RunBatch call. Zero means the
// caller's context is the only bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		c.timeout = d
	}
}

func WithExtractor(e Extractor) Option {
	return func(c *Correlator) {
		c.extract = e
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Correlator) {
		c.logger = l
	}
}

func New(t transport.Transport, opts ...Option) *Correlator {
	c := &Correlator{
		transport: t,
		extract:   decoder.Identifier,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("correlator")
	return c
}

// RunBatch dispatches every request asynchronously and blocks until all of
// them complete. The returned slice is index-aligned with requests.
//
// If the wait expires first, RunBatch returns the outcomes resolved so far
// together with a *BatchTimeoutError. Completions arriving afterwards are
// dropped.
func (c *Correlator) RunBatch(ctx context.Context, requests []transport.Request) ([]Outcome, error) {
	if len(requests) == 0 {
		return []Outcome{}, nil
	}

	// the timeout bounds the wait only; in-flight sends keep ctx
	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	state := newBatchState(len(requests))
	start := time.Now()

	for i, req := range requests {
		c.transport.SendAsync(ctx, req, c.completion(state, i))
	}

	select {
	case <-state.done:
		outcomes, _ := state.snapshot()
		c.logger.Debug("batch complete",
			zap.Int("size", len(outcomes)),
			zap.Duration("took", time.Since(start)),
		)
		return outcomes, nil
	case <-waitCtx.Done():
		outcomes, unresolved := state.abandon()
		if len(unresolved) == 0 {
			// the last completion raced the deadline
			return outcomes, nil
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("batch timed out",
				zap.Int("size", len(outcomes)),
				zap.Ints("unresolved", unresolved),
			)
			return outcomes, &BatchTimeoutError{Unresolved: unresolved}
		}
		return outcomes, fmt.Errorf("batch cancelled with %d unresolved: %w", len(unresolved), waitCtx.Err())
	}
}

// completion is bound to slot i. It never lets a decode fault skip the
// resolve step.
func (c *Correlator) completion(state *batchState, i int) transport.Callback {
	return func(resp *transport.Response, err error) {
		outcome := Outcome{Index: i}
		if err != nil {
			outcome.Err = err
		} else {
			outcome.ID, outcome.Err = c.safeExtract(resp)
		}

		if !state.resolve(outcome) {
			c.logger.Debug("ignored completion", zap.Int("index", i))
			return
		}
		if outcome.Err != nil {
			c.logger.Debug("request failed", zap.Int("index", i), zap.Error(outcome.Err))
		}
	}
}

func (c *Correlator) safeExtract(resp *transport.Response) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			id = ""
			err = &decoder.DecodeError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return c.extract(resp)
}
