package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher announces confirmed orders to downstream consumers
// (fulfillment, notifications). Publishing is best effort: a lost event is
// recoverable from the order service, a lost order is not.
type Publisher interface {
	OrderConfirmed(ctx context.Context, o *Order) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers ...string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-confirmed",
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

type orderConfirmedEvent struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount int64           `json:"total_amount"`
	Items       json.RawMessage `json:"items"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

func (p *KafkaPublisher) OrderConfirmed(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(orderConfirmedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TotalAmount: int64(o.TotalAmount),
		Items:       items,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.ID), // order id for partition ordering
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
