package application

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	sharedEvents "github.com/davicafu/auctionsearch/internal/shared/events"
)

func newEvent(id, eventType, payload string) sharedEvents.DomainEvent {
	return sharedEvents.DomainEvent{
		ID:         id,
		Type:       eventType,
		OccurredAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(payload),
	}
}

func TestMapper_MapAuctionCreated(t *testing.T) {
	// Arrange
	m := NewMapper()
	evt := newEvent("A1", auctionDomain.AuctionCreated,
		`{"title":"Car","make":"Ford","model":"GT","year":2020,"mileage":5000,"status":"Live","reservePrice":20000}`)

	// Act
	item, err := m.Map(evt)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "A1", item.ID)
	assert.Equal(t, "Car", item.Title)
	assert.Equal(t, "Ford", item.Make)
	assert.Equal(t, 2020, item.Year)
	assert.Equal(t, auctionDomain.AuctionLive, item.Status)
	assert.Equal(t, 20000, item.ReservePrice)
	assert.Equal(t, auctionDomain.AuctionCreated, item.LastEventType)
	assert.Equal(t, evt.OccurredAt, item.LastEventAt)
}

// El ID del item es siempre el del evento, aunque el payload traiga otro.
func TestMapper_RecordIDAlwaysEqualsEventID(t *testing.T) {
	m := NewMapper()

	for _, tc := range []struct {
		name    string
		payload string
	}{
		{"sin id en payload", `{"title":"Car"}`},
		{"id distinto en payload", `{"id":"OTHER","title":"Car"}`},
		{"id vacío en payload", `{"id":"","title":"Car"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, eventType := range []string{auctionDomain.AuctionCreated, auctionDomain.AuctionUpdated} {
				item, err := m.Map(newEvent("A1", eventType, tc.payload))
				require.NoError(t, err)
				assert.Equal(t, "A1", item.ID)
			}
		})
	}
}

func TestMapper_IgnoresUnknownFields(t *testing.T) {
	m := NewMapper()

	item, err := m.Map(newEvent("A1", auctionDomain.AuctionUpdated,
		`{"title":"Car (Updated)","unexpected":{"nested":true},"extra":[1,2,3]}`))

	require.NoError(t, err)
	assert.Equal(t, "Car (Updated)", item.Title)
}

func TestMapper_MalformedEvents(t *testing.T) {
	m := NewMapper()

	for _, tc := range []struct {
		name string
		evt  sharedEvents.DomainEvent
	}{
		{"sin id", newEvent("", auctionDomain.AuctionCreated, `{"title":"Car"}`)},
		{"id en blanco", newEvent("   ", auctionDomain.AuctionCreated, `{"title":"Car"}`)},
		{"tipo desconocido", newEvent("A1", "auction.exploded", `{"title":"Car"}`)},
		{"payload vacío", newEvent("A1", auctionDomain.AuctionCreated, ``)},
		{"payload null", newEvent("A1", auctionDomain.AuctionCreated, `null`)},
		{"payload no objeto", newEvent("A1", auctionDomain.AuctionCreated, `"Car"`)},
		{"tipo de campo incorrecto", newEvent("A1", auctionDomain.AuctionCreated, `{"title":"Car","year":"dos mil"}`)},
		{"sin título", newEvent("A1", auctionDomain.AuctionCreated, `{"make":"Ford"}`)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			item, err := m.Map(tc.evt)
			assert.Nil(t, item)
			assert.ErrorIs(t, err, auctionDomain.ErrMalformedEvent)
		})
	}
}

func TestMapper_IsDeterministic(t *testing.T) {
	m := NewMapper()
	evt := newEvent("A1", auctionDomain.AuctionCreated, `{"title":"Car","createdAt":"2025-01-01T00:00:00Z"}`)

	first, err := m.Map(evt)
	require.NoError(t, err)
	second, err := m.Map(evt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMapSnapshot(t *testing.T) {
	updated := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	item, err := MapSnapshot(auctionDomain.AuctionSnapshot{ID: "S1", Title: "Bike", UpdatedAt: updated})
	require.NoError(t, err)
	assert.Equal(t, "S1", item.ID)
	assert.Equal(t, auctionDomain.AuctionSeeded, item.LastEventType)
	assert.Equal(t, updated, item.LastEventAt)

	_, err = MapSnapshot(auctionDomain.AuctionSnapshot{ID: "S2"})
	assert.ErrorIs(t, err, auctionDomain.ErrMalformedEvent)
}
