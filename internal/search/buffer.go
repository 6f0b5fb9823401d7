package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BRO3886/docbatch/internal/correlator"
	"github.com/BRO3886/docbatch/internal/types"
	"go.uber.org/zap"
)

// Index buffers doc; Run writes the buffer out once it is full or the
// flush interval passes.
func (s *Service) Index(ctx context.Context, doc types.IndexableDocument) error {
	s.m.Lock()
	s.buff = append(s.buff, doc)
	full := len(s.buff) >= s.buffSize
	s.m.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run flushes on every tick and whenever the buffer fills up. When ctx
// ends, whatever is left is flushed once more before returning.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.flushCh:
		case <-ctx.Done():
			if _, err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				s.logger.Error("final flush failed", zap.Error(err))
			}
			return
		}
		if _, err := s.Flush(ctx); err != nil {
			s.logger.Error("failed to flush documents", zap.Error(err))
		}
	}
}

// Flush indexes the buffered documents as one correlated batch and
// publishes an outcome per document. The buffer is released before any
// network call.
func (s *Service) Flush(ctx context.Context) ([]correlator.Outcome, error) {
	s.flushing.Lock()
	defer s.flushing.Unlock()

	s.m.Lock()
	docs := s.buff
	s.buff = make([]types.IndexableDocument, 0, s.buffSize)
	s.m.Unlock()

	if len(docs) == 0 {
		return nil, nil
	}

	batchID := s.newBatchID()
	log := s.logger.With(zap.String("batch_id", batchID))
	log.Info("flushing documents", zap.Int("count", len(docs)))

	outcomes, err := s.IndexBatch(ctx, docs)

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	log.Info("flushed documents", zap.Int("ok", len(outcomes)-failed), zap.Int("failed", failed))

	if pubErr := s.publish(ctx, batchID, docs, outcomes); pubErr != nil {
		log.Error("failed to publish outcomes", zap.Error(pubErr))
	}
	return outcomes, err
}

// discard drops buffered writes for index/id and reports how many were
// dropped. The caller holds s.flushing.
func (s *Service) discard(index, id string) int {
	s.m.Lock()
	defer s.m.Unlock()

	kept := s.buff[:0]
	for _, doc := range s.buff {
		if doc.IndexName == index && doc.Id == id {
			continue
		}
		kept = append(kept, doc)
	}
	dropped := len(s.buff) - len(kept)
	clear(s.buff[len(kept):])
	s.buff = kept
	return dropped
}

func (s *Service) publish(ctx context.Context, batchID string, docs []types.IndexableDocument, outcomes []correlator.Outcome) error {
	if s.publisher == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	for i, o := range outcomes {
		event := types.OutcomeEvent{
			BatchID:   batchID,
			Slot:      o.Index,
			IndexName: docs[i].IndexName,
			ID:        o.ID,
			TimeStamp: now,
		}
		if o.Err != nil {
			event.Error = o.Err.Error()
		} else if o.ID == "" {
			event.Error = "unresolved"
		}
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal outcome %d: %w", i, err)
		}
		if err := s.publisher.Enqueue(ctx, s.outcomesTopic, data); err != nil {
			return fmt.Errorf("enqueue outcome %d: %w", i, err)
		}
	}
	return nil
}
