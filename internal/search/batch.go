package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/BRO3886/docbatch/internal/correlator"
	"github.com/BRO3886/docbatch/internal/decoder"
	"github.com/BRO3886/docbatch/internal/query"
	"github.com/BRO3886/docbatch/internal/transport"
	"github.com/BRO3886/docbatch/internal/types"
	"go.uber.org/zap"
)

// IndexOne writes doc synchronously and returns the assigned id along
// with the raw response.
func (s *Service) IndexOne(ctx context.Context, index string, doc Document) (string, *transport.Response, error) {
	req, err := query.IndexDocument(index, doc)
	if err != nil {
		return "", nil, err
	}

	resp, err := s.transport.SendSync(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("index document: %w", err)
	}

	id, err := decoder.Identifier(resp)
	if err != nil {
		return "", resp, err
	}
	return id, resp, nil
}

// IndexBatch writes every document concurrently. The outcomes line up with
// docs; a document that cannot be encoded fails its own slot without being
// sent.
func (s *Service) IndexBatch(ctx context.Context, docs []types.IndexableDocument) ([]correlator.Outcome, error) {
	outcomes := make([]correlator.Outcome, len(docs))
	reqs := make([]transport.Request, 0, len(docs))
	slots := make([]int, 0, len(docs))

	for i, doc := range docs {
		outcomes[i].Index = i
		req, err := query.IndexDocumentID(doc.IndexName, doc.Id, doc.Data)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		reqs = append(reqs, req)
		slots = append(slots, i)
	}

	results, err := s.correlator.RunBatch(ctx, reqs)
	for j, o := range results {
		o.Index = slots[j]
		outcomes[slots[j]] = o
	}

	var bte *correlator.BatchTimeoutError
	if errors.As(err, &bte) {
		unresolved := make([]int, len(bte.Unresolved))
		for k, j := range bte.Unresolved {
			unresolved[k] = slots[j]
		}
		err = &correlator.BatchTimeoutError{Unresolved: unresolved}
	}
	return outcomes, err
}

// Lookup fetches ids with a single multi-get. An empty ids list is still
// sent.
func (s *Service) Lookup(ctx context.Context, index string, ids []string) ([]decoder.Document, error) {
	resp, err := s.transport.SendSync(ctx, query.BuildLookup(index, ids))
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	docs, err := decoder.Documents(resp)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("lookup done", zap.Int("requested", len(ids)), zap.Int("returned", len(docs)))
	return docs, nil
}

// IDs returns the identifiers of the successful outcomes, in slot order.
func IDs(outcomes []correlator.Outcome) []string {
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func (s *Service) DeIndex(ctx context.Context, index, id string) error {
	if s.remover == nil {
		return fmt.Errorf("deindex %s/%s: no remover configured", index, id)
	}
	return s.remover.DeIndex(ctx, index, id)
}
