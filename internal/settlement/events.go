package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lv-brokerfeed/internal/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventIncomeRecorded = "income.recorded"

type IncomeEvent struct {
	ID          uuid.UUID            `json:"id"`
	Type        string               `json:"type"`
	Income      model.BrokerIncome   `json:"income"`
	Commissions []model.IBCommission `json:"commissions"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

func newIncomeEvent(income model.BrokerIncome, commissions []model.IBCommission) IncomeEvent {
	if commissions == nil {
		commissions = []model.IBCommission{}
	}
	return IncomeEvent{
		ID:          uuid.New(),
		Type:        EventIncomeRecorded,
		Income:      income,
		Commissions: commissions,
		OccurredAt:  time.Now().UTC(),
	}
}

// KafkaPublisher writes settlement events keyed by trade ID so every event
// for a trade lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
		logger: logger.Named("income-events"),
	}
}

func (p *KafkaPublisher) PublishIncome(ctx context.Context, ev IncomeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal income event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Income.TradeID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("publish income event: %w", err)
	}
	p.logger.Debug("income event published", zap.String("trade_id", ev.Income.TradeID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishIncome(context.Context, IncomeEvent) error { return nil }
