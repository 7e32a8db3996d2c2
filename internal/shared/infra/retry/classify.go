package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Permanent marca err como no reintentable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Transient marca err como reintentable aunque el clasificador no lo reconozca.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsPermanent indica si err (o algo que envuelve) fue marcado con Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsTransient indica si err parece un fallo pasajero de red o fue marcado con Transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// DefaultClassifier: lo marcado como permanente y la cancelación son fatales,
// todo lo demás se reintenta.
func DefaultClassifier(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case IsPermanent(err), errors.Is(err, context.Canceled):
		return Fatal
	default:
		return Retryable
	}
}

// TransientOn solo reintenta lo que IsTransient reconoce y los errores que envuelven
// alguno de los sentinels del llamador (p.ej. almacén no disponible). El resto es fatal.
func TransientOn(sentinels ...error) Classifier {
	return func(err error) Outcome {
		switch {
		case err == nil:
			return Success
		case IsPermanent(err), errors.Is(err, context.Canceled):
			return Fatal
		case IsTransient(err):
			return Retryable
		}
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return Retryable
			}
		}
		return Fatal
	}
}
