package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/metrics"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

const seedLockTTL = 5 * time.Minute

// Seeder rellena el almacén vacío con las subastas que ya existen en el servicio origen.
type Seeder struct {
	source   auctionDomain.AuctionSource
	repo     auctionDomain.ItemRepository
	writer   *Projector
	locker   auctionDomain.Locker
	interval time.Duration
	log      *zap.Logger
}

// NewSeeder: interval es la espera entre llamadas fallidas al servicio origen,
// que se reintentan sin límite porque el peer puede no haber arrancado todavía.
func NewSeeder(source auctionDomain.AuctionSource, repo auctionDomain.ItemRepository, writer *Projector,
	locker auctionDomain.Locker, interval time.Duration, log *zap.Logger) *Seeder {
	return &Seeder{
		source:   source,
		repo:     repo,
		writer:   writer,
		locker:   locker,
		interval: interval,
		log:      log,
	}
}

// Seed devuelve cuántos items se cargaron. No hace nada si el almacén ya tiene datos
// o si otra instancia tiene el lock del seed.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if count > 0 {
		s.log.Info("Almacén con datos, se omite el seed", zap.Int64("items", count))
		return 0, nil
	}

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, auctionDomain.SeedLockKey, seedLockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire seed lock: %w", err)
		}
		if !ok {
			s.log.Info("Otra instancia está haciendo el seed, se omite")
			return 0, nil
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.locker.Unlock(unlockCtx, auctionDomain.SeedLockKey); err != nil {
				s.log.Warn("⚠️ No se pudo liberar el lock del seed", zap.Error(err))
			}
		}()
	}

	policy := retry.Policy{
		Backoff:  retry.Forever(s.interval),
		Classify: retry.DefaultClassifier,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.IncRetry("seed_fetch")
			s.log.Warn("⚠️ Servicio de subastas no disponible, reintentando",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}

	auctions, err := retry.Execute(ctx, policy, func(ctx context.Context) ([]auctionDomain.AuctionSnapshot, error) {
		return s.source.ListAuctions(ctx, time.Time{})
	})
	if err != nil {
		return 0, fmt.Errorf("fetch auctions: %w", err)
	}

	seeded := 0
	for _, a := range auctions {
		item, err := MapSnapshot(a)
		if err != nil {
			if errors.Is(err, auctionDomain.ErrMalformedEvent) {
				s.log.Warn("Subasta inválida ignorada en el seed", zap.String("auction_id", a.ID), zap.Error(err))
				continue
			}
			return seeded, err
		}
		if err := s.writer.Apply(ctx, item); err != nil {
			return seeded, fmt.Errorf("seed item %s: %w", item.ID, err)
		}
		seeded++
	}

	metrics.AddSeeded(seeded)
	s.log.Info("✅ Seed inicial completado", zap.Int("items", seeded))
	return seeded, nil
}
