package search

import (
	"context"
	"sync"
	"time"

	"github.com/BRO3886/docbatch/internal/correlator"
	"github.com/BRO3886/docbatch/internal/decoder"
	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/BRO3886/docbatch/internal/transport"
	"github.com/BRO3886/docbatch/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Document map[string]any

type Searcher interface {
	IndexOne(ctx context.Context, index string, doc Document) (string, *transport.Response, error)
	IndexBatch(ctx context.Context, docs []types.IndexableDocument) ([]correlator.Outcome, error)
	Lookup(ctx context.Context, index string, ids []string) ([]decoder.Document, error)
	Index(ctx context.Context, doc types.IndexableDocument) error
	DeIndex(ctx context.Context, index, id string) error
}

// Remover deletes a single document by id.
type Remover interface {
	DeIndex(ctx context.Context, index, id string) error
}

type Service struct {
	transport  transport.Transport
	correlator *correlator.Correlator
	remover    Remover

	publisher     queue.Enqueuer
	outcomesTopic string

	buff          []types.IndexableDocument
	buffSize      int
	flushInterval time.Duration
	flushCh       chan struct{}
	m             sync.Mutex
	// held for a whole flush so a delete cannot land between the buffer
	// swap and the writes
	flushing sync.Mutex

	newBatchID func() string
	logger     *zap.Logger
}

var _ Searcher = (*Service)(nil)

type Option func(*Service)

func WithRemover(r Remover) Option {
	return func(s *Service) {
		s.remover = r
	}
}

// WithPublisher sends one OutcomeEvent per flushed document to topic.
func WithPublisher(p queue.Enqueuer, topic string) Option {
	return func(s *Service) {
		s.publisher = p
		s.outcomesTopic = topic
	}
}

func WithBuffer(size int, flushInterval time.Duration) Option {
	return func(s *Service) {
		s.buffSize = size
		s.flushInterval = flushInterval
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func New(t transport.Transport, c *correlator.Correlator, opts ...Option) *Service {
	s := &Service{
		transport:     t,
		correlator:    c,
		buffSize:      100,
		flushInterval: 5 * time.Second,
		flushCh:       make(chan struct{}, 1),
		newBatchID:    uuid.NewString,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("search")
	s.buff = make([]types.IndexableDocument, 0, s.buffSize)
	return s
}
