package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
)

// InMemoryItemRepo simula el ItemRepository con semántica de upsert.
// UpsertErr permite inyectar fallos: se consulta antes de cada escritura.
type InMemoryItemRepo struct {
	Items       map[string]auctionDomain.Item
	UpsertCalls int
	UpsertErr   func(it *auctionDomain.Item, call int) error
	mu          sync.Mutex
}

func NewInMemoryItemRepo() *InMemoryItemRepo {
	return &InMemoryItemRepo{Items: make(map[string]auctionDomain.Item)}
}

func (r *InMemoryItemRepo) Upsert(ctx context.Context, it *auctionDomain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UpsertCalls++
	if r.UpsertErr != nil {
		if err := r.UpsertErr(it, r.UpsertCalls); err != nil {
			return err
		}
	}
	r.Items[it.ID] = *it // copia: el llamador no puede mutar lo guardado
	return nil
}

func (r *InMemoryItemRepo) GetByID(ctx context.Context, id string) (*auctionDomain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.Items[id]
	if !ok {
		return nil, auctionDomain.ErrItemNotFound
	}
	return &it, nil
}

func (r *InMemoryItemRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.Items)), nil
}

func (r *InMemoryItemRepo) List(ctx context.Context, limit, offset int) ([]*auctionDomain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*auctionDomain.Item, 0, len(r.Items))
	for _, it := range r.Items {
		it := it
		all = append(all, &it)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if offset >= len(all) {
		return []*auctionDomain.Item{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// Snapshot devuelve una copia del contenido para comparar estados.
func (r *InMemoryItemRepo) Snapshot() map[string]auctionDomain.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]auctionDomain.Item, len(r.Items))
	for k, v := range r.Items {
		out[k] = v
	}
	return out
}

// MockJournal simula el journal analítico.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) LogBatch(ctx context.Context, items []*auctionDomain.Item) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

var (
	_ auctionDomain.ItemRepository = (*InMemoryItemRepo)(nil)
	_ auctionDomain.ItemJournal    = (*MockJournal)(nil)
)
