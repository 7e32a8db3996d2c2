package clickhouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
)

// ItemJournal guarda en ClickHouse cada proyección aplicada, para analítica.
// No forma parte del camino crítico: el consumidor solo registra sus fallos.
type ItemJournal struct {
	db *sql.DB
}

func NewItemJournal(ctx context.Context, addr, dbName string) (*ItemJournal, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &ItemJournal{db: conn}, nil
}

// LogBatch inserta el lote en una sola transacción.
func (j *ItemJournal) LogBatch(ctx context.Context, items []*auctionDomain.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items_log (id, title, make, model, year, seller, status,
		reserve_price, current_high_bid, event_type, event_time)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(
			ctx,
			it.ID,
			it.Title,
			it.Make,
			it.Model,
			int32(it.Year),
			it.Seller,
			string(it.Status),
			int64(it.ReservePrice),
			int64(it.CurrentHighBid),
			it.LastEventType,
			it.LastEventAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for item %s: %w", it.ID, err)
		}
	}

	return tx.Commit()
}

// InitSchema crea la tabla en ClickHouse si no existe.
func (j *ItemJournal) InitSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS items_log (
			id               String,
			title            String,
			make             String,
			model            String,
			year             Int32,
			seller           String,
			status           LowCardinality(String),
			reserve_price    Int64,
			current_high_bid Int64,
			event_type       LowCardinality(String),
			event_time       DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (event_type, event_time, id)`)
	return err
}

func (j *ItemJournal) Close() error {
	return j.db.Close()
}

var _ auctionDomain.ItemJournal = (*ItemJournal)(nil)
