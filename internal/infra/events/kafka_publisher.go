package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/auctionsearch/internal/shared/infra/platform/bus"
)

// MessageWriter es la parte de *kafka.Writer que usamos.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
	log    *zap.Logger
}

func NewKafkaPublisher(writer MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var key []byte
	if keyer, ok := event.(sharedBus.Keyer); ok {
		key = []byte(keyer.PartitionKey())
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: data}); err != nil {
		p.log.Error("Error publishing to Kafka", zap.Error(err))
		return err
	}

	p.log.Debug("Event published successfully", zap.String("key", string(key)))
	return nil
}

// Forward reenvía el mensaje original al topic de dead-letter con cabeceras de diagnóstico.
func (p *KafkaPublisher) Forward(ctx context.Context, msg kafka.Message, reason error) error {
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: "x-dlq-reason", Value: []byte(reason.Error())},
			kafka.Header{Key: "x-dlq-source-topic", Value: []byte(msg.Topic)},
		),
	}
	if err := p.writer.WriteMessages(ctx, out); err != nil {
		return err
	}
	p.log.Info("Mensaje enviado a dead-letter", zap.String("key", string(msg.Key)), zap.Int64("offset", msg.Offset))
	return nil
}

// Verificación estática
var (
	_ sharedBus.EventBus = (*KafkaPublisher)(nil)
	_ DeadLetterSink     = (*KafkaPublisher)(nil)
)
