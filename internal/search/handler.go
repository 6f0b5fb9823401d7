package search

import (
	"context"
	"encoding/json"

	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/BRO3886/docbatch/internal/types"
	"go.uber.org/zap"
)

// Handler adapts the service to the documents topic. Malformed events are
// logged and skipped so one bad message cannot stall the partition.
//
// A delete waits for any running flush, drops buffered writes of the same
// document and then deletes it on the cluster. A failed delete is returned
// so the message is redelivered.
func (s *Service) Handler(defaultIndex string) queue.MessageHandler {
	return func(ctx context.Context, data []byte) error {
		var event types.DocumentEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("error unmarshalling event", zap.Error(err))
			return nil
		}

		document, err := types.GetIndexableDoc(event, defaultIndex)
		if err != nil {
			s.logger.Warn("error parsing document event", zap.Error(err))
			return nil
		}

		if document.DeIndex {
			return s.remove(ctx, document.IndexName, document.Id)
		}

		return s.Index(ctx, *document)
	}
}

func (s *Service) remove(ctx context.Context, index, id string) error {
	s.flushing.Lock()
	defer s.flushing.Unlock()

	if n := s.discard(index, id); n > 0 {
		s.logger.Debug("dropped buffered writes", zap.String("id", id), zap.Int("count", n))
	}
	if err := s.DeIndex(ctx, index, id); err != nil {
		s.logger.Error("deindex failed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}
