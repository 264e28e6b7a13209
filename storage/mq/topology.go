package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeIntakeEvents     = "intake.events"
	ExchangeIntakeDeadLetter = "intake.events.dlx"

	RoutingKeyIntakeCompleted = "intake.completed"

	QueueIntakeCompleted    = "intake.completed"
	QueueIntakeCompletedDLQ = "intake.completed.dlq"
)

// channelDeclarer 便于在测试中替换 amqp.Channel
type channelDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology 声明 intake 事件交换机、完成队列及其死信队列，重复声明是幂等的
func DeclareTopology(ch channelDeclarer) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{ExchangeIntakeEvents, amqp.ExchangeTopic},
		{ExchangeIntakeDeadLetter, amqp.ExchangeFanout},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}

	if _, err := ch.QueueDeclare(QueueIntakeCompletedDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueIntakeCompletedDLQ, err)
	}
	if err := ch.QueueBind(QueueIntakeCompletedDLQ, "", ExchangeIntakeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueIntakeCompletedDLQ, err)
	}

	args := amqp.Table{"x-dead-letter-exchange": ExchangeIntakeDeadLetter}
	if _, err := ch.QueueDeclare(QueueIntakeCompleted, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueIntakeCompleted, err)
	}
	if err := ch.QueueBind(QueueIntakeCompleted, RoutingKeyIntakeCompleted, ExchangeIntakeEvents, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueIntakeCompleted, err)
	}

	return nil
}
