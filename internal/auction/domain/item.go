package domain

import (
	"time"
)

type AuctionStatus string

const (
	AuctionLive          AuctionStatus = "Live"
	AuctionFinished      AuctionStatus = "Finished"
	AuctionReserveNotMet AuctionStatus = "ReserveNotMet"
)

// Item es el registro desnormalizado que sirve a las búsquedas.
// ID siempre es el ID del evento de origen, nunca uno generado aquí.
type Item struct {
	ID             string
	Title          string
	Make           string
	Model          string
	Year           int
	Color          string
	Mileage        int
	ImageURL       string
	Seller         string
	Winner         string
	Status         AuctionStatus
	ReservePrice   int
	SoldAmount     int
	CurrentHighBid int
	AuctionEnd     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Metadatos de la proyección
	LastEventType string
	LastEventAt   time.Time
}

func (i *Item) PartitionKey() string {
	return i.ID
}

// Validate comprueba los campos obligatorios de la proyección.
func (i *Item) Validate() error {
	if i.ID == "" {
		return MalformedEvent("missing id")
	}
	if i.Title == "" {
		return MalformedEvent("missing title")
	}
	return nil
}
