package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

type ItemRepoPostgres struct {
	db *sql.DB
}

func NewItemRepoPostgres(db *sql.DB) *ItemRepoPostgres {
	return &ItemRepoPostgres{db: db}
}

// InitSchema crea la tabla de proyecciones si no existe.
func (r *ItemRepoPostgres) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS items (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			make             TEXT NOT NULL DEFAULT '',
			model            TEXT NOT NULL DEFAULT '',
			year             INTEGER NOT NULL DEFAULT 0,
			color            TEXT NOT NULL DEFAULT '',
			mileage          INTEGER NOT NULL DEFAULT 0,
			image_url        TEXT NOT NULL DEFAULT '',
			seller           TEXT NOT NULL DEFAULT '',
			winner           TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT '',
			reserve_price    INTEGER NOT NULL DEFAULT 0,
			sold_amount      INTEGER NOT NULL DEFAULT 0,
			current_high_bid INTEGER NOT NULL DEFAULT 0,
			auction_end      TIMESTAMPTZ,
			created_at       TIMESTAMPTZ,
			updated_at       TIMESTAMPTZ,
			last_event_type  TEXT NOT NULL DEFAULT '',
			last_event_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_items_updated_at ON items (updated_at DESC);`)
	return classifyPgError(err)
}

// Upsert: INSERT ... ON CONFLICT reemplaza todas las columnas (last-write-wins).
func (r *ItemRepoPostgres) Upsert(ctx context.Context, it *auctionDomain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, title, make, model, year, color, mileage, image_url, seller, winner, status,
			reserve_price, sold_amount, current_high_bid, auction_end, created_at, updated_at, last_event_type, last_event_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, make = EXCLUDED.make, model = EXCLUDED.model, year = EXCLUDED.year,
			color = EXCLUDED.color, mileage = EXCLUDED.mileage, image_url = EXCLUDED.image_url,
			seller = EXCLUDED.seller, winner = EXCLUDED.winner, status = EXCLUDED.status,
			reserve_price = EXCLUDED.reserve_price, sold_amount = EXCLUDED.sold_amount,
			current_high_bid = EXCLUDED.current_high_bid, auction_end = EXCLUDED.auction_end,
			created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at,
			last_event_type = EXCLUDED.last_event_type, last_event_at = EXCLUDED.last_event_at`,
		it.ID, it.Title, it.Make, it.Model, it.Year, it.Color, it.Mileage, it.ImageURL, it.Seller, it.Winner,
		string(it.Status), it.ReservePrice, it.SoldAmount, it.CurrentHighBid, it.AuctionEnd, it.CreatedAt,
		it.UpdatedAt, it.LastEventType, it.LastEventAt,
	)
	if err != nil {
		return classifyPgError(fmt.Errorf("upsert item %s: %w", it.ID, err))
	}
	return nil
}

const selectColumns = `id, title, make, model, year, color, mileage, image_url, seller, winner, status,
	reserve_price, sold_amount, current_high_bid, auction_end, created_at, updated_at, last_event_type, last_event_at`

func (r *ItemRepoPostgres) GetByID(ctx context.Context, id string) (*auctionDomain.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auctionDomain.ErrItemNotFound
		}
		return nil, classifyPgError(err)
	}
	return it, nil
}

func (r *ItemRepoPostgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, classifyPgError(err)
	}
	return n, nil
}

func (r *ItemRepoPostgres) List(ctx context.Context, limit, offset int) ([]*auctionDomain.Item, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM items ORDER BY updated_at DESC`)
	args := []interface{}{}
	if limit > 0 {
		args = append(args, limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if offset > 0 {
		args = append(args, offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	items := []*auctionDomain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, classifyPgError(rows.Err())
}

func (r *ItemRepoPostgres) Ping(ctx context.Context) error {
	return classifyPgError(r.db.PingContext(ctx))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(s scanner) (*auctionDomain.Item, error) {
	var it auctionDomain.Item
	var status string
	var auctionEnd, createdAt, updatedAt, lastEventAt sql.NullTime
	if err := s.Scan(&it.ID, &it.Title, &it.Make, &it.Model, &it.Year, &it.Color, &it.Mileage, &it.ImageURL,
		&it.Seller, &it.Winner, &status, &it.ReservePrice, &it.SoldAmount, &it.CurrentHighBid,
		&auctionEnd, &createdAt, &updatedAt, &it.LastEventType, &lastEventAt); err != nil {
		return nil, err
	}
	it.Status = auctionDomain.AuctionStatus(status)
	it.AuctionEnd = auctionEnd.Time.UTC()
	it.CreatedAt = createdAt.Time.UTC()
	it.UpdatedAt = updatedAt.Time.UTC()
	it.LastEventAt = lastEventAt.Time.UTC()
	return &it, nil
}

// classifyPgError: SQLSTATE 08 (conexión), 57P0x (apagado) y timeouts son pasajeros;
// 28 (autorización), 3D000 (base de datos inexistente) y un DSN inválido son de configuración.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}

	// DSN mal formado: reintentar no lo arregla.
	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return retry.Permanent(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "3D000":
			return retry.Permanent(err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"), pgErr.Code == "53300":
			return auctionDomain.StoreUnavailable(err)
		}
		return err
	}

	if pgconn.Timeout(err) || retry.IsTransient(err) {
		return auctionDomain.StoreUnavailable(err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return auctionDomain.StoreUnavailable(err)
	}
	return err
}

var _ auctionDomain.ItemRepository = (*ItemRepoPostgres)(nil)
