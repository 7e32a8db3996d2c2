package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ---------- Errores de dominio ----------
var (
	ErrItemNotFound = errors.New("item not found")

	// ErrMalformedEvent: reintentar no cambia el resultado, el mensaje se descarta.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrStoreUnavailable: fallo pasajero del almacén, el mensaje no se confirma.
	ErrStoreUnavailable = errors.New("projection store unavailable")
)

// MalformedEvent construye un error que envuelve ErrMalformedEvent.
func MalformedEvent(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, reason)
}

// StoreUnavailable envuelve un error de conectividad del almacén.
func StoreUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// ---------- Interfaces (Ports) ----------

// ItemRepository es el almacén idempotente de proyecciones.
type ItemRepository interface {
	// Upsert inserta o reemplaza el item con ese ID. Aplicarlo N veces deja
	// un único registro igual al último aplicado.
	// Debe devolver un error que envuelva ErrStoreUnavailable ante fallos de conectividad.
	Upsert(ctx context.Context, it *Item) error

	// Debe devolver ErrItemNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Item, error)

	Count(ctx context.Context) (int64, error)

	// List devuelve items ordenados por UpdatedAt descendente.
	List(ctx context.Context, limit, offset int) ([]*Item, error)
}

// ItemJournal registra en un almacén analítico las proyecciones aplicadas.
type ItemJournal interface {
	LogBatch(ctx context.Context, items []*Item) error
}

// AuctionSource es el servicio de subastas que se consulta durante el seed inicial.
type AuctionSource interface {
	// ListAuctions devuelve las subastas modificadas después de since (zero = todas).
	ListAuctions(ctx context.Context, since time.Time) ([]AuctionSnapshot, error)
}

// AuctionSnapshot es el estado actual de una subasta tal como lo expone el servicio origen.
type AuctionSnapshot struct {
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

// Locker evita que varias instancias hagan el seed a la vez.
type Locker interface {
	// TryLock devuelve false si otra instancia tiene el lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ---------- Helpers comunes (cache keys, etc.) ----------

func ItemCacheKeyByID(id string) string {
	return fmt.Sprintf("item:id:%s", id)
}

const SeedLockKey = "search:seed:lock"
