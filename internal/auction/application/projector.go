package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/metrics"
	sharedEvents "github.com/davicafu/auctionsearch/internal/shared/events"
	sharedCache "github.com/davicafu/auctionsearch/internal/shared/infra/platform/cache"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

const itemCacheTTL = 10 * time.Minute

// Projector transforma eventos de subastas en items de búsqueda y los persiste.
// Implementa el MessageHandler que usa el bucle de consumo.
type Projector struct {
	mapper  *Mapper
	repo    auctionDomain.ItemRepository
	cache   sharedCache.Cache // opcional
	retry   retry.Backoff
	timeout time.Duration
	log     *zap.Logger

	// journal opcional; se escribe desde su propia goroutine.
	journalSink   auctionDomain.ItemJournal
	journalBuffer int
	journal       *journalWriter
}

// ProjectorOption configura dependencias opcionales del Projector.
type ProjectorOption func(*Projector)

func WithCache(c sharedCache.Cache) ProjectorOption {
	return func(p *Projector) { p.cache = c }
}

func WithJournal(j auctionDomain.ItemJournal) ProjectorOption {
	return func(p *Projector) { p.journalSink = j }
}

// WithJournalBuffer fija cuántos items pueden esperar al journal antes de descartarse.
func WithJournalBuffer(n int) ProjectorOption {
	return func(p *Projector) { p.journalBuffer = n }
}

// WithUpsertRetry cambia la estrategia de reintento del upsert (por defecto 5 intentos cada 5s).
func WithUpsertRetry(b retry.Backoff) ProjectorOption {
	return func(p *Projector) { p.retry = b }
}

// WithWriteTimeout limita la duración de cada intento de escritura.
func WithWriteTimeout(d time.Duration) ProjectorOption {
	return func(p *Projector) { p.timeout = d }
}

func NewProjector(mapper *Mapper, repo auctionDomain.ItemRepository, log *zap.Logger, opts ...ProjectorOption) *Projector {
	p := &Projector{
		mapper:  mapper,
		repo:    repo,
		retry:   retry.Times(5, 5*time.Second),
		timeout: 5 * time.Second,
		log:     log,

		journalBuffer: defaultJournalBuffer,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.journalSink != nil {
		p.journal = newJournalWriter(p.journalSink, p.journalBuffer, p.timeout, log)
	}
	return p
}

// Close espera a que el journal vacíe su cola. Llamar al parar el consumidor.
func (p *Projector) Close() {
	if p.journal != nil {
		p.journal.close()
	}
}

// HandleMessage decodifica, mapea y persiste un mensaje.
//   - nil: el item quedó persistido, el mensaje se puede confirmar.
//   - ErrMalformedEvent: el mensaje nunca se podrá procesar, se descarta.
//   - ErrStoreUnavailable: fallo pasajero, el mensaje NO se debe confirmar.
func (p *Projector) HandleMessage(ctx context.Context, key string, payload []byte) error {
	var evt sharedEvents.DomainEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", auctionDomain.ErrMalformedEvent, err)
	}

	item, err := p.mapper.Map(evt)
	if err != nil {
		return err
	}

	if err := p.upsert(ctx, item); err != nil {
		return err
	}

	p.log.Info("Item proyectado",
		zap.String("item_id", item.ID),
		zap.String("event_type", evt.Type),
		zap.String("key", key),
	)
	p.afterCommit(item)
	return nil
}

// Apply persiste un item ya mapeado con la misma política que los eventos del bus.
func (p *Projector) Apply(ctx context.Context, item *auctionDomain.Item) error {
	if err := p.upsert(ctx, item); err != nil {
		return err
	}
	p.afterCommit(item)
	return nil
}

func (p *Projector) upsert(ctx context.Context, item *auctionDomain.Item) error {
	policy := retry.Policy{
		Backoff:  p.retry,
		Classify: classifyStoreError,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.IncRetry("upsert")
			p.log.Warn("⚠️ Upsert fallido, reintentando",
				zap.String("item_id", item.ID),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.repo.Upsert(writeCtx, item)
	})
	if err == nil {
		metrics.IncUpsert("ok")
		return nil
	}

	// Agotar los reintentos o cancelar durante la espera deja el mensaje pendiente.
	if errors.Is(err, auctionDomain.ErrStoreUnavailable) || errors.Is(err, retry.ErrGaveUp) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		metrics.IncUpsert("unavailable")
		if !errors.Is(err, auctionDomain.ErrStoreUnavailable) {
			return auctionDomain.StoreUnavailable(err)
		}
		return err
	}

	metrics.IncUpsert("error")
	return fmt.Errorf("upsert item %s: %w", item.ID, err)
}

// afterCommit ejecuta los efectos secundarios que no condicionan la confirmación.
func (p *Projector) afterCommit(item *auctionDomain.Item) {
	sharedCache.AsyncCacheSet(p.cache, auctionDomain.ItemCacheKeyByID(item.ID), item, itemCacheTTL, p.log)

	if p.journal != nil {
		p.journal.enqueue(item)
	}
}

// classifyStoreError: solo los errores de conectividad merecen otro intento.
func classifyStoreError(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.Success
	case errors.Is(err, auctionDomain.ErrStoreUnavailable):
		return retry.Retryable
	case errors.Is(err, context.DeadlineExceeded):
		return retry.Retryable
	default:
		return retry.Fatal
	}
}
