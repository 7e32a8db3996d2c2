package bus

import "context"

// Keyer lo implementan los eventos que fijan su clave de partición.
type Keyer interface {
	PartitionKey() string
}

// EventBus publica un evento serializable. El formato del payload lo decide cada adapter.
type EventBus interface {
	Publish(ctx context.Context, event interface{}) error
}
