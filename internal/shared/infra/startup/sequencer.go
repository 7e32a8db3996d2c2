package startup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

// Probe comprueba que una dependencia responde.
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

// Policy controla cuánto se insiste con cada dependencia.
type Policy struct {
	Attempts int           // 0 = reintentar sin límite
	Interval time.Duration // espera entre intentos
	Timeout  time.Duration // límite de cada ping; 0 = sin límite propio

	// Classify decide qué fallos de un probe se reintentan. Por defecto
	// retry.TransientOn(): lo que no se reconoce como pasajero (DSN o dirección
	// mal formados, credenciales) aborta el arranque en el primer intento.
	Classify retry.Classifier
}

// DefaultPolicy: 5 intentos separados por 10s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Interval: 10 * time.Second, Timeout: 5 * time.Second}
}

func (p Policy) classifier() retry.Classifier {
	if p.Classify == nil {
		return retry.TransientOn()
	}
	return p.Classify
}

func (p Policy) backoff() retry.Backoff {
	if p.Attempts <= 0 {
		return retry.Forever(p.Interval)
	}
	return retry.Times(p.Attempts, p.Interval)
}

// FatalInitError indica que el servicio no puede arrancar: una dependencia rechazó
// la conexión de forma definitiva o se agotaron los intentos.
type FatalInitError struct {
	Dependency string
	Err        error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("startup: %s not ready: %v", e.Dependency, e.Err)
}

func (e *FatalInitError) Unwrap() error { return e.Err }

// Seeder carga datos iniciales una vez que las dependencias responden.
type Seeder interface {
	Seed(ctx context.Context) (int, error)
}

// Sequencer espera a las dependencias del servicio antes de declararlo listo.
type Sequencer struct {
	probes []Probe
	seeder Seeder
	log    *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
	isReady   atomic.Bool
}

func NewSequencer(log *zap.Logger) *Sequencer {
	return &Sequencer{log: log, ready: make(chan struct{})}
}

// Register añade una dependencia. Se comprueban en el orden de registro.
func (s *Sequencer) Register(name string, ping func(ctx context.Context) error) {
	s.probes = append(s.probes, Probe{Name: name, Ping: ping})
}

// SetSeeder configura el seed que se ejecuta tras los probes y antes de marcar ready.
func (s *Sequencer) SetSeeder(seeder Seeder) {
	s.seeder = seeder
}

// EnsureReady bloquea hasta que todas las dependencias responden.
// Devuelve *FatalInitError si alguna falla de forma definitiva, o el error del
// contexto si se cancela mientras espera.
func (s *Sequencer) EnsureReady(ctx context.Context, policy Policy) error {
	for _, probe := range s.probes {
		if err := s.waitFor(ctx, probe, policy); err != nil {
			return err
		}
	}

	if s.seeder != nil {
		n, err := s.seeder.Seed(ctx)
		switch {
		case err == nil:
			s.log.Info("🌱 Seed inicial ejecutado", zap.Int("items", n))
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// El consumidor acaba poniendo el almacén al día: un seed fallido no bloquea el arranque.
			s.log.Error("❌ Seed inicial fallido, se continúa sin él", zap.Error(err))
		}
	}

	s.markReady()
	s.log.Info("✅ Dependencias listas")
	return nil
}

func (s *Sequencer) waitFor(ctx context.Context, probe Probe, policy Policy) error {
	p := retry.Policy{
		Backoff:  policy.backoff(),
		Classify: policy.classifier(),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.log.Warn("⏳ Dependencia no disponible, reintentando",
				zap.String("dependency", probe.Name),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}

	err := p.Do(ctx, func(ctx context.Context) error {
		if policy.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}
		return probe.Ping(ctx)
	})
	if err == nil {
		s.log.Info("Dependencia disponible", zap.String("dependency", probe.Name))
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, retry.ErrGaveUp) {
		return ctxErr
	}
	return &FatalInitError{Dependency: probe.Name, Err: err}
}

func (s *Sequencer) markReady() {
	s.readyOnce.Do(func() {
		s.isReady.Store(true)
		close(s.ready)
	})
}

// Ready se cierra cuando el arranque ha terminado.
func (s *Sequencer) Ready() <-chan struct{} {
	return s.ready
}

func (s *Sequencer) IsReady() bool {
	return s.isReady.Load()
}
