package retry

import "time"

// Backoff indica cuánto esperar tras el intento número attempt (empieza en 1)
// y si se permite un intento más.
type Backoff interface {
	Next(attempt int) (time.Duration, bool)
}

// Fixed es una espera constante. MaxAttempts <= 0 significa sin límite.
type Fixed struct {
	Interval    time.Duration
	MaxAttempts int
}

func (f Fixed) Next(attempt int) (time.Duration, bool) {
	if f.MaxAttempts > 0 && attempt >= f.MaxAttempts {
		return 0, false
	}
	return f.Interval, true
}

// Forever reintenta indefinidamente con intervalo fijo.
// Pensado para peers que tarde o temprano estarán disponibles.
func Forever(interval time.Duration) Fixed {
	return Fixed{Interval: interval}
}

// Times permite exactamente n intentos en total separados por interval.
func Times(n int, interval time.Duration) Fixed {
	if n < 1 {
		n = 1
	}
	return Fixed{Interval: interval, MaxAttempts: n}
}
