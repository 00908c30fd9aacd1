package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReminderPublisher отправляет напоминания о продлении в exchange уведомлений.
type ReminderPublisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

// NewReminderPublisher создаёт новый ReminderPublisher.
func NewReminderPublisher(ch *amqp.Channel) *ReminderPublisher {
	return &ReminderPublisher{ch: ch}
}

// Dispatch публикует напоминание. Сообщение считается отправленным,
// когда брокер принял публикацию.
func (p *ReminderPublisher) Dispatch(ctx context.Context, notice models.ReminderNotice) error {
	const op = "rabbitmq.ReminderPublisher.Dispatch"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishMessage(p.ch, ExchangeName, RenewalRoutingKey, notice); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
