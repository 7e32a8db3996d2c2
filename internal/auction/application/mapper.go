package application

import (
	"errors"
	"fmt"
	"strings"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	sharedEvents "github.com/davicafu/auctionsearch/internal/shared/events"
	"github.com/davicafu/auctionsearch/internal/shared/infra/utils"
)

// MapFunc convierte el payload de un tipo de evento concreto en un Item.
type MapFunc func(evt sharedEvents.DomainEvent) (*auctionDomain.Item, error)

// Mapper despacha cada tipo de evento a su función de mapeo explícita.
// No hace I/O ni guarda estado: se puede compartir sin locks.
type Mapper struct {
	funcs map[string]MapFunc
}

// NewMapper registra los mapeos conocidos del contexto de subastas.
func NewMapper() *Mapper {
	return &Mapper{
		funcs: map[string]MapFunc{
			auctionDomain.AuctionCreated: mapAuctionCreated,
			auctionDomain.AuctionUpdated: mapAuctionUpdated,
		},
	}
}

// Map transforma el evento en la proyección. El ID del item es siempre evt.ID,
// ignorando cualquier id que venga dentro del payload.
func (m *Mapper) Map(evt sharedEvents.DomainEvent) (*auctionDomain.Item, error) {
	if strings.TrimSpace(evt.ID) == "" {
		return nil, auctionDomain.MalformedEvent("missing event id")
	}

	fn, ok := m.funcs[evt.Type]
	if !ok {
		return nil, auctionDomain.MalformedEvent(fmt.Sprintf("unknown event type %q", evt.Type))
	}

	item, err := fn(evt)
	if err != nil {
		return nil, err
	}

	item.ID = evt.ID
	item.LastEventType = evt.Type
	item.LastEventAt = evt.OccurredAt.UTC()

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// MapSnapshot convierte una subasta obtenida en el seed inicial.
func MapSnapshot(s auctionDomain.AuctionSnapshot) (*auctionDomain.Item, error) {
	item := &auctionDomain.Item{
		ID:             s.ID,
		Title:          s.Title,
		Make:           s.Make,
		Model:          s.Model,
		Year:           s.Year,
		Color:          s.Color,
		Mileage:        s.Mileage,
		ImageURL:       s.ImageURL,
		Seller:         s.Seller,
		Winner:         s.Winner,
		Status:         auctionDomain.AuctionStatus(s.Status),
		ReservePrice:   s.ReservePrice,
		SoldAmount:     s.SoldAmount,
		CurrentHighBid: s.CurrentHighBid,
		AuctionEnd:     s.AuctionEnd.UTC(),
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
		LastEventType:  auctionDomain.AuctionSeeded,
		LastEventAt:    s.UpdatedAt.UTC(),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// ---------- Mapeos por tipo ----------

func mapAuctionCreated(evt sharedEvents.DomainEvent) (*auctionDomain.Item, error) {
	p, err := decodePayload[sharedEvents.AuctionCreated](evt)
	if err != nil {
		return nil, err
	}
	return itemFromAuction(p), nil
}

func mapAuctionUpdated(evt sharedEvents.DomainEvent) (*auctionDomain.Item, error) {
	p, err := decodePayload[sharedEvents.AuctionUpdated](evt)
	if err != nil {
		return nil, err
	}
	return itemFromAuction(sharedEvents.AuctionCreated(p)), nil
}

func itemFromAuction(p sharedEvents.AuctionCreated) *auctionDomain.Item {
	return &auctionDomain.Item{
		Title:          p.Title,
		Make:           p.Make,
		Model:          p.Model,
		Year:           p.Year,
		Color:          p.Color,
		Mileage:        p.Mileage,
		ImageURL:       p.ImageURL,
		Seller:         p.Seller,
		Winner:         p.Winner,
		Status:         auctionDomain.AuctionStatus(p.Status),
		ReservePrice:   p.ReservePrice,
		SoldAmount:     p.SoldAmount,
		CurrentHighBid: p.CurrentHighBid,
		AuctionEnd:     p.AuctionEnd.UTC(),
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

// decodePayload ignora los campos desconocidos; un payload vacío o que no sea
// un objeto JSON es un evento mal formado.
func decodePayload[T any](evt sharedEvents.DomainEvent) (T, error) {
	p, err := utils.UnmarshalAs[T](evt.Payload)
	if errors.Is(err, utils.ErrEmptyPayload) {
		return p, auctionDomain.MalformedEvent("empty payload")
	}
	if err != nil {
		return p, fmt.Errorf("%w: decode %s payload: %v", auctionDomain.ErrMalformedEvent, evt.Type, err)
	}
	return p, nil
}
