package repository

import (
	"context"
	"fmt"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	pkgkafka "PulseScan/pkg/kafka"
)

// KafkaPublisher fans signals and alerts out to Kafka topics, keyed by
// symbol so per-symbol ordering survives partitioning.
type KafkaPublisher struct {
	producer    *pkgkafka.Producer
	signalTopic string
	alertTopic  string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, signalTopic, alertTopic string) drepo.SignalPublisher {
	return &KafkaPublisher{
		producer:    producer,
		signalTopic: signalTopic,
		alertTopic:  alertTopic,
	}
}

func (p *KafkaPublisher) PublishSignal(ctx context.Context, s *models.SmartSignal) error {
	if err := p.producer.Publish(ctx, p.signalTopic, []byte(s.Symbol), s); err != nil {
		return fmt.Errorf("publish signal %s: %w", s.Symbol, err)
	}
	return nil
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, n models.Notification) error {
	if err := p.producer.Publish(ctx, p.alertTopic, []byte(n.Symbol), n); err != nil {
		return fmt.Errorf("publish alert %s/%s: %w", n.Type, n.Symbol, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
