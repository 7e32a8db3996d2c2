package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
)

// MockAuctionSource simula el servicio de subastas consultado en el seed.
type MockAuctionSource struct {
	mock.Mock
}

func (m *MockAuctionSource) ListAuctions(ctx context.Context, since time.Time) ([]auctionDomain.AuctionSnapshot, error) {
	args := m.Called(ctx, since)
	var out []auctionDomain.AuctionSnapshot
	if v := args.Get(0); v != nil {
		out = v.([]auctionDomain.AuctionSnapshot)
	}
	return out, args.Error(1)
}

// MockLocker simula el lock distribuido del seed.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Unlock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var (
	_ auctionDomain.AuctionSource = (*MockAuctionSource)(nil)
	_ auctionDomain.Locker        = (*MockLocker)(nil)
)
