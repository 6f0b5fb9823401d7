package kafka

import (
	"fmt"

	"github.com/BRO3886/docbatch/internal/queue"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	handler queue.MessageHandler
	logger  *zap.Logger
}

func NewConsumerGroupHandler(handler queue.MessageHandler, logger *zap.Logger) sarama.ConsumerGroupHandler {
	return &ConsumerGroupHandler{
		handler: handler,
		logger:  logger,
	}
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler. A message is marked
// only after the handler accepted it.
func (c *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) (err error) {
	c.logger.Info("consuming claim", zap.String("topic", claim.Topic()), zap.Int32("partition", claim.Partition()))
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", zap.Any("panic", r))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for message := range claim.Messages() {
		if err := c.handler(session.Context(), message.Value); err != nil {
			c.logger.Error("error handling message",
				zap.String("topic", message.Topic),
				zap.Int64("offset", message.Offset),
				zap.Error(err),
			)
			return err
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	return nil
}
