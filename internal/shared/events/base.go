package events

import (
	"encoding/json"
	"time"
)

// DomainEvent es el sobre de todos los eventos de integración que llegan por el bus.
// ID es el identificador del agregado y se mantiene estable durante toda su vida.
type DomainEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"` // contenido específico del evento
}

// PartitionKey mantiene todos los eventos de un mismo agregado en la misma partición.
func (e DomainEvent) PartitionKey() string {
	return e.ID
}
