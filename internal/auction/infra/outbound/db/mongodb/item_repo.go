package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/auth"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

const itemsCollection = "items"

// ItemRepoMongoDB implementa ItemRepository sobre una colección keyed por _id = ID del evento.
type ItemRepoMongoDB struct {
	client    *mongo.Client
	itemsColl *mongo.Collection
}

// NewItemRepoMongoDB no hace I/O: la conectividad la comprueba el secuenciador de arranque con Ping.
func NewItemRepoMongoDB(client *mongo.Client, dbName string) *ItemRepoMongoDB {
	return &ItemRepoMongoDB{
		client:    client,
		itemsColl: client.Database(dbName).Collection(itemsCollection),
	}
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoItem struct {
	ID             string    `bson:"_id"`
	Title          string    `bson:"title"`
	Make           string    `bson:"make"`
	Model          string    `bson:"model"`
	Year           int       `bson:"year"`
	Color          string    `bson:"color"`
	Mileage        int       `bson:"mileage"`
	ImageURL       string    `bson:"imageUrl"`
	Seller         string    `bson:"seller"`
	Winner         string    `bson:"winner"`
	Status         string    `bson:"status"`
	ReservePrice   int       `bson:"reservePrice"`
	SoldAmount     int       `bson:"soldAmount"`
	CurrentHighBid int       `bson:"currentHighBid"`
	AuctionEnd     time.Time `bson:"auctionEnd"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
	LastEventType  string    `bson:"lastEventType"`
	LastEventAt    time.Time `bson:"lastEventAt"`
}

// Upsert reemplaza el documento completo (last-write-wins, sin merge).
func (r *ItemRepoMongoDB) Upsert(ctx context.Context, it *auctionDomain.Item) error {
	doc := toMongoItem(it)
	opts := options.Replace().SetUpsert(true)

	if _, err := r.itemsColl.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return classifyMongoError(fmt.Errorf("upsert item %s: %w", it.ID, err))
	}
	return nil
}

func (r *ItemRepoMongoDB) GetByID(ctx context.Context, id string) (*auctionDomain.Item, error) {
	var mi mongoItem
	err := r.itemsColl.FindOne(ctx, bson.M{"_id": id}).Decode(&mi)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auctionDomain.ErrItemNotFound
		}
		return nil, classifyMongoError(err)
	}
	return fromMongoItem(&mi), nil
}

func (r *ItemRepoMongoDB) Count(ctx context.Context) (int64, error) {
	n, err := r.itemsColl.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return n, nil
}

func (r *ItemRepoMongoDB) List(ctx context.Context, limit, offset int) ([]*auctionDomain.Item, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.itemsColl.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cursor.Close(ctx)

	items := []*auctionDomain.Item{}
	for cursor.Next(ctx) {
		var mi mongoItem
		if err := cursor.Decode(&mi); err != nil {
			return nil, err
		}
		items = append(items, fromMongoItem(&mi))
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyMongoError(err)
	}
	return items, nil
}

// EnsureIndexes crea los índices de texto y orden usados por las búsquedas.
func (r *ItemRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.itemsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "make", Value: "text"}, {Key: "model", Value: "text"}, {Key: "color", Value: "text"}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "auctionEnd", Value: 1}}},
	})
	if err != nil {
		return classifyMongoError(fmt.Errorf("create indexes: %w", err))
	}
	return nil
}

// Ping se usa como probe del secuenciador de arranque.
func (r *ItemRepoMongoDB) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return classifyMongoError(fmt.Errorf("could not ping mongoDB: %w", err))
	}
	return nil
}

// --- Helpers de Mapeo y Conversión ---

func toMongoItem(it *auctionDomain.Item) *mongoItem {
	return &mongoItem{
		ID: it.ID, Title: it.Title, Make: it.Make, Model: it.Model, Year: it.Year, Color: it.Color,
		Mileage: it.Mileage, ImageURL: it.ImageURL, Seller: it.Seller, Winner: it.Winner,
		Status: string(it.Status), ReservePrice: it.ReservePrice, SoldAmount: it.SoldAmount,
		CurrentHighBid: it.CurrentHighBid, AuctionEnd: it.AuctionEnd, CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt, LastEventType: it.LastEventType, LastEventAt: it.LastEventAt,
	}
}

func fromMongoItem(mi *mongoItem) *auctionDomain.Item {
	return &auctionDomain.Item{
		ID: mi.ID, Title: mi.Title, Make: mi.Make, Model: mi.Model, Year: mi.Year, Color: mi.Color,
		Mileage: mi.Mileage, ImageURL: mi.ImageURL, Seller: mi.Seller, Winner: mi.Winner,
		Status: auctionDomain.AuctionStatus(mi.Status), ReservePrice: mi.ReservePrice, SoldAmount: mi.SoldAmount,
		CurrentHighBid: mi.CurrentHighBid, AuctionEnd: mi.AuctionEnd.UTC(), CreatedAt: mi.CreatedAt.UTC(),
		UpdatedAt: mi.UpdatedAt.UTC(), LastEventType: mi.LastEventType, LastEventAt: mi.LastEventAt.UTC(),
	}
}

// Códigos de servidor que indican credenciales o permisos inválidos.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// classifyMongoError separa los fallos de conectividad (reintentables) de los de
// configuración (permanentes). El resto se devuelve tal cual.
func classifyMongoError(err error) error {
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == codeAuthenticationFailed || cmdErr.Code == codeUnauthorized) {
		return retry.Permanent(err)
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return retry.Permanent(err)
	}

	var selErr topology.ServerSelectionError
	var srvErr mongo.ServerError
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.As(err, &selErr):
		return auctionDomain.StoreUnavailable(err)
	case errors.As(err, &srvErr) && srvErr.HasErrorLabel("RetryableWriteError"):
		return auctionDomain.StoreUnavailable(err)
	case errors.Is(err, context.DeadlineExceeded):
		return auctionDomain.StoreUnavailable(err)
	default:
		return err
	}
}

// Verificación en tiempo de compilación.
var _ auctionDomain.ItemRepository = (*ItemRepoMongoDB)(nil)
