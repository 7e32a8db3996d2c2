package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
)

// ItemRepoSQLite es el almacén de proyecciones para despliegues locales.
type ItemRepoSQLite struct {
	db *sql.DB
}

func NewItemRepoSQLite(db *sql.DB) *ItemRepoSQLite {
	return &ItemRepoSQLite{db: db}
}

// Open abre (o crea) la base de datos y deja el esquema listo.
// SQLite solo admite un escritor: se limita el pool a una conexión.
func Open(ctx context.Context, path string) (*ItemRepoSQLite, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	repo := NewItemRepoSQLite(db)
	if err := repo.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

func (r *ItemRepoSQLite) InitSchema(ctx context.Context) error {
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
			auction_end      DATETIME,
			created_at       DATETIME,
			updated_at       DATETIME,
			last_event_type  TEXT NOT NULL DEFAULT '',
			last_event_at    DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_items_updated_at ON items (updated_at DESC);`)
	return classifySQLiteError(err)
}

func (r *ItemRepoSQLite) Upsert(ctx context.Context, it *auctionDomain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, title, make, model, year, color, mileage, image_url, seller, winner, status,
			reserve_price, sold_amount, current_high_bid, auction_end, created_at, updated_at, last_event_type, last_event_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, make = excluded.make, model = excluded.model, year = excluded.year,
			color = excluded.color, mileage = excluded.mileage, image_url = excluded.image_url,
			seller = excluded.seller, winner = excluded.winner, status = excluded.status,
			reserve_price = excluded.reserve_price, sold_amount = excluded.sold_amount,
			current_high_bid = excluded.current_high_bid, auction_end = excluded.auction_end,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			last_event_type = excluded.last_event_type, last_event_at = excluded.last_event_at`,
		it.ID, it.Title, it.Make, it.Model, it.Year, it.Color, it.Mileage, it.ImageURL, it.Seller, it.Winner,
		string(it.Status), it.ReservePrice, it.SoldAmount, it.CurrentHighBid,
		it.AuctionEnd.UTC(), it.CreatedAt.UTC(), it.UpdatedAt.UTC(), it.LastEventType, it.LastEventAt.UTC(),
	)
	if err != nil {
		return classifySQLiteError(fmt.Errorf("upsert item %s: %w", it.ID, err))
	}
	return nil
}

const selectColumns = `id, title, make, model, year, color, mileage, image_url, seller, winner, status,
	reserve_price, sold_amount, current_high_bid, auction_end, created_at, updated_at, last_event_type, last_event_at`

func (r *ItemRepoSQLite) GetByID(ctx context.Context, id string) (*auctionDomain.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auctionDomain.ErrItemNotFound
		}
		return nil, classifySQLiteError(err)
	}
	return it, nil
}

func (r *ItemRepoSQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, classifySQLiteError(err)
	}
	return n, nil
}

func (r *ItemRepoSQLite) List(ctx context.Context, limit, offset int) ([]*auctionDomain.Item, error) {
	if limit <= 0 {
		limit = -1 // sin límite en SQLite
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM items ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, classifySQLiteError(err)
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
	return items, classifySQLiteError(rows.Err())
}

func (r *ItemRepoSQLite) Ping(ctx context.Context) error {
	return classifySQLiteError(r.db.PingContext(ctx))
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

// classifySQLiteError: BUSY y LOCKED se resuelven solos cuando el otro escritor termina.
func classifySQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return auctionDomain.StoreUnavailable(err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return auctionDomain.StoreUnavailable(err)
	}
	return err
}

var _ auctionDomain.ItemRepository = (*ItemRepoSQLite)(nil)
