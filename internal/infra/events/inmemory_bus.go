package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/auctionsearch/internal/shared/infra/platform/bus"
)

var ErrBusClosed = errors.New("in-memory bus closed")

// InMemoryEventBus implementa un bus de eventos para UN solo topic con una única
// suscripción. Lleva offsets y commits como Kafka para que el consumidor se comporte
// igual en local que en producción.
type InMemoryEventBus struct {
	topic     string
	messages  chan kafka.Message
	mu        sync.Mutex
	offset    int64
	committed []int64
	closeOnce sync.Once
	closed    chan struct{}
}

var (
	_ sharedBus.EventBus = (*InMemoryEventBus)(nil)
	_ MessageReader      = (*InMemoryEventBus)(nil)
)

// NewInMemoryEventBus crea un bus con un buffer de bufferSize mensajes.
func NewInMemoryEventBus(topic string, bufferSize int) *InMemoryEventBus {
	return &InMemoryEventBus{
		topic:    topic,
		messages: make(chan kafka.Message, bufferSize),
		closed:   make(chan struct{}),
	}
}

// Publish serializa el evento en JSON y lo encola. Si implementa Keyer se usa como clave.
func (b *InMemoryEventBus) Publish(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var key []byte
	if keyer, ok := event.(sharedBus.Keyer); ok {
		key = []byte(keyer.PartitionKey())
	}
	return b.PublishRaw(ctx, key, payload)
}

// PublishRaw encola bytes tal cual, útil para simular payloads corruptos.
func (b *InMemoryEventBus) PublishRaw(ctx context.Context, key, value []byte) error {
	b.mu.Lock()
	msg := kafka.Message{
		Topic:  b.topic,
		Offset: b.offset,
		Key:    key,
		Value:  value,
		Time:   time.Now().UTC(),
	}
	b.offset++
	b.mu.Unlock()

	select {
	case <-b.closed:
		return ErrBusClosed
	default:
	}

	select {
	case b.messages <- msg:
		return nil
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchMessage bloquea hasta que haya un mensaje o se cancele el contexto.
func (b *InMemoryEventBus) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-b.messages:
		return msg, nil
	case <-b.closed:
		return kafka.Message{}, ErrBusClosed
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (b *InMemoryEventBus) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		b.committed = append(b.committed, m.Offset)
	}
	return nil
}

// Committed devuelve los offsets confirmados en orden de confirmación.
func (b *InMemoryEventBus) Committed() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, len(b.committed))
	copy(out, b.committed)
	return out
}

func (b *InMemoryEventBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
