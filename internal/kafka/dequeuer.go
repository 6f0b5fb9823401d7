package kafka

import (
	"context"
	"errors"

	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type KafkaDequeuer struct {
	consumerGroup sarama.ConsumerGroup
	cfg           *Config
	logger        *zap.Logger
}

var _ queue.Dequeuer = (*KafkaDequeuer)(nil)

func NewDequeuer(ctx context.Context, c *Config) (queue.Dequeuer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(c.GetBrokers(), c.GetGroup(), c.GetConfig())
	if err != nil {
		return nil, err
	}
	return &KafkaDequeuer{
		consumerGroup: consumerGroup,
		cfg:           c,
		logger:        c.Logger(),
	}, nil
}

// Dequeue consumes topic until ctx is done, rejoining the group after every
// rebalance.
func (k *KafkaDequeuer) Dequeue(ctx context.Context, topic string, handler queue.MessageHandler) error {
	h := NewConsumerGroupHandler(handler, k.logger)
	for {
		if err := k.consumerGroup.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		k.logger.Info("consumer group rebalanced", zap.String("topic", topic))
	}
}

func (k *KafkaDequeuer) Close() error {
	return k.consumerGroup.Close()
}
