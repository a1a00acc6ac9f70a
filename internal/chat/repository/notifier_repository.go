package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/database"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
)

// OfflineNotifier 收件者不在線時發佈通知 (推播服務消費)
type OfflineNotifier interface {
	Notify(ctx context.Context, notice domain.OfflineNotice) error
	Close() error
}

type rabbitNotifier struct {
	repo  database.RabbitRepo
	queue string
}

// NewRabbitNotifier create a RabbitMQ OfflineNotifier, 會先宣告 queue
func NewRabbitNotifier(repo database.RabbitRepo, queue string) (OfflineNotifier, error) {
	if err := repo.QueueDeclare(queue); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &rabbitNotifier{repo: repo, queue: queue}, nil
}

func (n *rabbitNotifier) Notify(_ context.Context, notice domain.OfflineNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return n.repo.Publish("", n.queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (n *rabbitNotifier) Close() error {
	return n.repo.Close()
}

// KafkaWriter kafka.Writer 需要的部分
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaNotifier struct {
	writer KafkaWriter
}

// NewKafkaNotifier create a Kafka OfflineNotifier, key 為 receiverId 讓同一人的通知落在同一 partition
func NewKafkaNotifier(writer KafkaWriter) OfflineNotifier {
	return &kafkaNotifier{writer: writer}
}

func (n *kafkaNotifier) Notify(ctx context.Context, notice domain.OfflineNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notice.ReceiverID),
		Value: body,
	})
}

func (n *kafkaNotifier) Close() error {
	return n.writer.Close()
}

type noopNotifier struct{}

// NewNoopNotifier notify.driver = none
func NewNoopNotifier() OfflineNotifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(context.Context, domain.OfflineNotice) error { return nil }

func (noopNotifier) Close() error { return nil }
