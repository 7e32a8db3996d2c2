package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/metrics"
)

const (
	defaultJournalBuffer = 1024
	journalBatchSize     = 100
)

// journalWriter saca el journal analítico del camino del consumidor: encola sin
// bloquear y una única goroutine escribe en lotes.
type journalWriter struct {
	journal auctionDomain.ItemJournal
	queue   chan *auctionDomain.Item
	timeout time.Duration
	log     *zap.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newJournalWriter(journal auctionDomain.ItemJournal, buffer int, timeout time.Duration, log *zap.Logger) *journalWriter {
	if buffer < 1 {
		buffer = 1
	}
	w := &journalWriter{
		journal: journal,
		queue:   make(chan *auctionDomain.Item, buffer),
		timeout: timeout,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue nunca bloquea: con la cola llena el item se descarta y se registra.
func (w *journalWriter) enqueue(item *auctionDomain.Item) {
	cp := *item
	select {
	case w.queue <- &cp:
	default:
		metrics.AddJournalItems("dropped", 1)
		w.log.Warn("⚠️ Cola del journal llena, item descartado", zap.String("item_id", item.ID))
	}
}

func (w *journalWriter) run() {
	defer close(w.done)
	for {
		select {
		case item := <-w.queue:
			w.write(w.collect(item))
		case <-w.stop:
			for {
				select {
				case item := <-w.queue:
					w.write(w.collect(item))
				default:
					return
				}
			}
		}
	}
}

// collect junta en un lote lo que ya esté en cola, sin esperar a más.
func (w *journalWriter) collect(first *auctionDomain.Item) []*auctionDomain.Item {
	batch := []*auctionDomain.Item{first}
	for len(batch) < journalBatchSize {
		select {
		case item := <-w.queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
	return batch
}

func (w *journalWriter) write(batch []*auctionDomain.Item) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.journal.LogBatch(ctx, batch); err != nil {
		metrics.AddJournalItems("failed", len(batch))
		w.log.Warn("⚠️ No se pudo registrar el lote en el journal",
			zap.Int("items", len(batch)),
			zap.Error(err),
		)
		return
	}
	metrics.AddJournalItems("logged", len(batch))
}

// close vacía la cola y espera a que termine la última escritura.
func (w *journalWriter) close() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
