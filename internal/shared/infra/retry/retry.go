package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome clasifica el resultado de un intento.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Classifier decide si un error merece otro intento.
// Nunca recibe nil: un resultado sin error siempre es Success.
type Classifier func(err error) Outcome

// ErrGaveUp se usa con errors.Is para detectar que se agotaron los intentos.
var ErrGaveUp = errors.New("retry: gave up")

// GiveUpError se devuelve cuando una estrategia acotada agota sus intentos.
type GiveUpError struct {
	Attempts int
	Last     error
}

func (e *GiveUpError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *GiveUpError) Unwrap() error { return e.Last }

func (e *GiveUpError) Is(target error) bool { return target == ErrGaveUp }

// Policy agrupa estrategia de espera, clasificador y hook de observación.
type Policy struct {
	Backoff  Backoff
	Classify Classifier
	// OnRetry se invoca antes de cada espera (attempt empieza en 1).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do ejecuta op bajo la política.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute reintenta op hasta que tenga éxito, el clasificador devuelva Fatal,
// la estrategia se agote o el contexto se cancele.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Times(1, 0)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := op(ctx)
		if err == nil {
			return res, nil
		}

		if classify(err) == Fatal {
			return zero, err
		}

		wait, ok := backoff.Next(attempt)
		if !ok {
			return zero, &GiveUpError{Attempts: attempt, Last: err}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// sleep espera d o hasta que el contexto se cancele, lo que ocurra antes.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
