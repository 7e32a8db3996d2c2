package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resultados posibles de un mensaje consumido.
const (
	OutcomeCommitted = "committed"
	OutcomeDropped   = "dropped"
	OutcomeRequeued  = "requeued"
	OutcomePoison    = "poison"
)

var (
	initOnce sync.Once

	messagesConsumedCounter  *prometheus.CounterVec
	upsertsCounter           *prometheus.CounterVec
	retryAttemptsCounter     *prometheus.CounterVec
	processingDurationMetric prometheus.Histogram
	seededItemsCounter       prometheus.Counter
	journalItemsCounter      *prometheus.CounterVec
)

// Init registra las métricas en el registry por defecto una sola vez.
func Init() {
	initOnce.Do(func() {
		messagesConsumedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_messages_consumed_total",
				Help: "Mensajes consumidos del bus por resultado.",
			},
			[]string{"outcome"},
		)

		upsertsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_projection_upserts_total",
				Help: "Upserts en el almacén de proyecciones por resultado.",
			},
			[]string{"result"},
		)

		retryAttemptsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_retry_attempts_total",
				Help: "Reintentos ejecutados por operación.",
			},
			[]string{"operation"},
		)

		processingDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_message_processing_duration_seconds",
				Help:    "Duración del procesamiento de un mensaje en segundos.",
				Buckets: prometheus.DefBuckets,
			},
		)

		seededItemsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_seeded_items_total",
				Help: "Items cargados desde el servicio de subastas en el seed inicial.",
			},
		)

		journalItemsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_journal_items_total",
				Help: "Items enviados al journal analítico por resultado (logged, failed, dropped).",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			messagesConsumedCounter,
			upsertsCounter,
			retryAttemptsCounter,
			processingDurationMetric,
			seededItemsCounter,
			journalItemsCounter,
		)

		for _, outcome := range []string{OutcomeCommitted, OutcomeDropped, OutcomeRequeued, OutcomePoison} {
			messagesConsumedCounter.WithLabelValues(outcome)
		}
	})
}

func IncMessage(outcome string) {
	Init()
	messagesConsumedCounter.WithLabelValues(outcome).Inc()
}

func IncUpsert(result string) {
	Init()
	upsertsCounter.WithLabelValues(result).Inc()
}

func IncRetry(operation string) {
	Init()
	retryAttemptsCounter.WithLabelValues(operation).Inc()
}

func ObserveProcessingDuration(d time.Duration) {
	Init()
	processingDurationMetric.Observe(d.Seconds())
}

func AddSeeded(n int) {
	Init()
	seededItemsCounter.Add(float64(n))
}

func AddJournalItems(result string, n int) {
	Init()
	journalItemsCounter.WithLabelValues(result).Add(float64(n))
}
