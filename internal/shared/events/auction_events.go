package events

import "time"

// Contratos de integración publicados por el servicio de subastas.
// Se definen planos para el intercambio entre contextos, NO son entidades del dominio.
type AuctionCreated struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Make           string    `json:"make"`
	Model          string    `json:"model"`
	Year           int       `json:"year"`
	Color          string    `json:"color"`
	Mileage        int       `json:"mileage"`
	ImageURL       string    `json:"imageUrl"`
	Seller         string    `json:"seller"`
	Winner         string    `json:"winner"`
	Status         string    `json:"status"`
	ReservePrice   int       `json:"reservePrice"`
	SoldAmount     int       `json:"soldAmount"`
	CurrentHighBid int       `json:"currentHighBid"`
	AuctionEnd     time.Time `json:"auctionEnd"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AuctionUpdated reemplaza la proyección completa (last-write-wins), por eso
// transporta los mismos campos que AuctionCreated.
type AuctionUpdated AuctionCreated
