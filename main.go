package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BRO3886/docbatch/internal/config"
	"github.com/BRO3886/docbatch/internal/correlator"
	"github.com/BRO3886/docbatch/internal/kafka"
	"github.com/BRO3886/docbatch/internal/logger"
	"github.com/BRO3886/docbatch/internal/opensearch"
	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/BRO3886/docbatch/internal/query"
	"github.com/BRO3886/docbatch/internal/search"
	"github.com/BRO3886/docbatch/internal/types"
	"go.uber.org/zap"
)

var (
	mode       string
	configPath string
	streamFile string
	count      int
)

func init() {
	flag.StringVar(&mode, "mode", "batch", "mode to run in: probe, batch, ingest or index")
	flag.StringVar(&configPath, "config", config.DefaultPath, "path to the yaml config")
	flag.StringVar(&streamFile, "file", "stream.jsonl", "jsonl file read in ingest mode")
	flag.IntVar(&count, "count", 0, "documents per batch in batch mode (defaults to batch.size)")
}

func main() {
	flag.Parse()
	os.Exit(start())
}

// start runs the selected mode and returns the process exit code. Deferred
// cleanup runs before main exits.
func start() int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("run failed", zap.String("mode", mode), zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	kafkaCfg := kafka.NewConfig(
		kafka.WithBrokers(cfg.Kafka.Brokers...),
		kafka.WithSyncProducer(), // comment to run async producer
		kafka.WithConsumeOldest(),
		kafka.WithTopics(cfg.Kafka.Topic.Name),
		kafka.WithConsumerGroup(cfg.Kafka.ConsumerGroup),
		kafka.WithRetry(
			cfg.Kafka.Retry.Max,
			time.Duration(cfg.Kafka.Retry.Backoff)*time.Millisecond,
		),
		kafka.WithLogger(log),
	)

	switch mode {
	case "ingest":
		enqueuer, err := kafka.NewEnqueuer(ctx, kafkaCfg)
		if err != nil {
			return fmt.Errorf("error starting kafka enqueuer: %w", err)
		}
		return runIngestion(ctx, cfg, enqueuer, log)
	case "probe", "batch", "index":
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	client, err := opensearch.New(cfg, log)
	if err != nil {
		return fmt.Errorf("error starting opensearch client: %w", err)
	}
	if err := client.EnsureIndex(ctx, cfg.Opensearch.Index.Name); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	corr := correlator.New(client,
		correlator.WithTimeout(cfg.BatchTimeout()),
		correlator.WithLogger(log),
	)

	switch mode {
	case "probe":
		return runProbe(ctx, cfg, search.New(client, corr, search.WithLogger(log)), log)
	case "batch":
		return runBatch(ctx, cfg, search.New(client, corr, search.WithLogger(log)), log)
	}

	dequeuer, err := kafka.NewDequeuer(ctx, kafkaCfg)
	if err != nil {
		return fmt.Errorf("error starting kafka dequeuer: %w", err)
	}
	enqueuer, err := kafka.NewEnqueuer(ctx, kafkaCfg)
	if err != nil {
		return fmt.Errorf("error starting kafka enqueuer: %w", err)
	}
	svc := search.New(client, corr,
		search.WithRemover(client),
		search.WithPublisher(enqueuer, cfg.Kafka.OutcomesTopic),
		search.WithBuffer(cfg.Opensearch.Index.BuffSize, cfg.FlushInterval()),
		search.WithLogger(log),
	)
	return runIndexing(ctx, cfg, dequeuer, enqueuer, svc, log)
}

func runProbe(ctx context.Context, cfg *config.Config, svc search.Searcher, log *zap.Logger) error {
	id, resp, err := svc.IndexOne(ctx, cfg.Opensearch.Index.Name, search.Document{"json": "text"})
	if err != nil {
		return err
	}
	log.Info("document indexed", zap.String("id", id))
	fmt.Println(string(resp.Body))
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, svc search.Searcher, log *zap.Logger) error {
	n := count
	if n <= 0 {
		n = cfg.Batch.Size
	}

	docs := make([]types.IndexableDocument, n)
	for i := range docs {
		docs[i] = types.IndexableDocument{
			IndexName: cfg.Opensearch.Index.Name,
			Data:      query.CounterDocument(i),
		}
	}

	outcomes, err := svc.IndexBatch(ctx, docs)
	var bte *correlator.BatchTimeoutError
	if errors.As(err, &bte) {
		log.Warn("batch incomplete", zap.Ints("unresolved", bte.Unresolved))
	} else if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Err != nil {
			log.Warn("document failed", zap.Int("slot", o.Index), zap.Error(o.Err))
		}
	}

	ids := search.IDs(outcomes)
	log.Info("batch indexed", zap.Int("requested", n), zap.Int("indexed", len(ids)))

	found, err := svc.Lookup(ctx, cfg.Opensearch.Index.Name, ids)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(found, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runIndexing(
	ctx context.Context,
	cfg *config.Config,
	dequeuer queue.Dequeuer,
	enqueuer queue.Enqueuer,
	svc *search.Service,
	log *zap.Logger,
) error {
	log.Info("started indexing", zap.String("topic", cfg.Kafka.Topic.Name))
	defer enqueuer.Close()
	defer dequeuer.Close()

	runCtx, cancel := context.WithCancel(ctx)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		svc.Run(runCtx)
	}()

	err := dequeuer.Dequeue(ctx, cfg.Kafka.Topic.Name, svc.Handler(cfg.Opensearch.Index.Name))
	cancel()
	<-flushed
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error dequeuing events: %w", err)
	}
	log.Info("indexing stopped")
	return nil
}

func runIngestion(ctx context.Context, cfg *config.Config, enqueuer queue.Enqueuer, log *zap.Logger) error {
	log.Info("started ingestion", zap.String("file", streamFile))
	defer enqueuer.Close()

	f, err := os.Open(streamFile)
	if err != nil {
		return fmt.Errorf("failed to read stream file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enqueued := 0
	for i := 0; scanner.Scan(); i++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event types.DocumentEvent
		if err := json.Unmarshal(line, &event); err != nil {
			log.Warn("error unmarshalling event", zap.Int("line", i), zap.Error(err))
			continue
		}
		// validations if any
		if time.UnixMilli(event.TimeStamp).After(time.Now()) {
			log.Warn("event is in the future", zap.Int("line", i))
			continue
		}
		if err := enqueuer.Enqueue(ctx, cfg.Kafka.Topic.Name, line); err != nil {
			log.Error("error enqueuing event", zap.Int("line", i), zap.Error(err))
			continue
		}
		enqueued++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream file: %w", err)
	}
	log.Info("ingestion completed", zap.Int("enqueued", enqueued))
	return nil
}
