package kafka

import (
	"context"
	"sync"

	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type KafkaEnqueuer struct {
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer
	cfg           *Config
	logger        *zap.Logger
	drained       sync.WaitGroup
}

var _ queue.Enqueuer = (*KafkaEnqueuer)(nil)

func NewEnqueuer(ctx context.Context, c *Config) (queue.Enqueuer, error) {
	syncProducer, err := sarama.NewSyncProducer(c.GetBrokers(), c.GetConfig())
	if err != nil {
		return nil, err
	}

	asyncProducer, err := sarama.NewAsyncProducer(c.GetBrokers(), c.GetConfig())
	if err != nil {
		_ = syncProducer.Close()
		return nil, err
	}

	return newEnqueuer(syncProducer, asyncProducer, c), nil
}

func newEnqueuer(sp sarama.SyncProducer, ap sarama.AsyncProducer, c *Config) *KafkaEnqueuer {
	k := &KafkaEnqueuer{
		syncProducer:  sp,
		asyncProducer: ap,
		cfg:           c,
		logger:        c.Logger(),
	}
	k.drained.Add(1)
	go k.drain()
	return k
}

func (k *KafkaEnqueuer) Enqueue(ctx context.Context, topic string, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if k.cfg.IsSync() {
		return k.enqueueSync(ctx, msg)
	}
	return k.enqueueAsync(ctx, msg)
}

func (k *KafkaEnqueuer) enqueueSync(ctx context.Context, msg *sarama.ProducerMessage) error {
	partition, offset, err := k.syncProducer.SendMessage(msg)
	if err != nil {
		return err
	}
	k.logger.Debug("message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// enqueueAsync tags msg with its own result channel; drain routes the
// producer's success or error back to it.
func (k *KafkaEnqueuer) enqueueAsync(ctx context.Context, msg *sarama.ProducerMessage) error {
	ch := make(chan error, 1)
	msg.Metadata = ch

	select {
	case k.asyncProducer.Input() <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaEnqueuer) drain() {
	defer k.drained.Done()
	successes := k.asyncProducer.Successes()
	errs := k.asyncProducer.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			reply(msg, nil)
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			k.logger.Warn("async produce failed", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
			reply(perr.Msg, perr.Err)
		}
	}
}

func reply(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		return
	}
	if ch, ok := msg.Metadata.(chan error); ok {
		ch <- err
	}
}

func (k *KafkaEnqueuer) Close() error {
	if err := k.syncProducer.Close(); err != nil {
		return err
	}
	if err := k.asyncProducer.Close(); err != nil {
		return err
	}
	k.drained.Wait()
	return nil
}
