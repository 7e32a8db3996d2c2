package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/mocks"
)

func TestSeeder_SeedsEmptyStore(t *testing.T) {
	// Arrange
	repo := mocks.NewInMemoryItemRepo()
	source := new(mocks.MockAuctionSource)
	source.On("ListAuctions", mock.Anything, time.Time{}).Return([]auctionDomain.AuctionSnapshot{
		{ID: "A1", Title: "Car"},
		{ID: "A2", Title: "Van"},
		{ID: "A3"}, // sin título: se ignora
	}, nil).Once()
	s := NewSeeder(source, repo, newTestProjector(repo), nil, time.Millisecond, zap.NewNop())

	// Act
	n, err := s.Seed(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, repo.Snapshot(), 2)
	source.AssertExpectations(t)
}

func TestSeeder_SkipsWhenStoreHasData(t *testing.T) {
	repo := mocks.NewInMemoryItemRepo()
	require.NoError(t, repo.Upsert(context.Background(), &auctionDomain.Item{ID: "X", Title: "Existing"}))
	source := new(mocks.MockAuctionSource)
	s := NewSeeder(source, repo, newTestProjector(repo), nil, time.Millisecond, zap.NewNop())

	n, err := s.Seed(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	source.AssertNotCalled(t, "ListAuctions", mock.Anything, mock.Anything)
}

// El peer puede no haber arrancado: se reintenta sin límite hasta que responde.
func TestSeeder_RetriesUnavailableSource(t *testing.T) {
	repo := mocks.NewInMemoryItemRepo()
	source := new(mocks.MockAuctionSource)
	source.On("ListAuctions", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Times(3)
	source.On("ListAuctions", mock.Anything, mock.Anything).Return([]auctionDomain.AuctionSnapshot{{ID: "A1", Title: "Car"}}, nil).Once()
	s := NewSeeder(source, repo, newTestProjector(repo), nil, time.Millisecond, zap.NewNop())

	n, err := s.Seed(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	source.AssertNumberOfCalls(t, "ListAuctions", 4)
}

func TestSeeder_UnavailableSourceHonoursCancellation(t *testing.T) {
	repo := mocks.NewInMemoryItemRepo()
	source := new(mocks.MockAuctionSource)
	source.On("ListAuctions", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	s := NewSeeder(source, repo, newTestProjector(repo), nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Seed(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSeeder_SkipsWhenLockHeldElsewhere(t *testing.T) {
	repo := mocks.NewInMemoryItemRepo()
	source := new(mocks.MockAuctionSource)
	locker := new(mocks.MockLocker)
	locker.On("TryLock", mock.Anything, auctionDomain.SeedLockKey, mock.Anything).Return(false, nil).Once()
	s := NewSeeder(source, repo, newTestProjector(repo), locker, time.Millisecond, zap.NewNop())

	n, err := s.Seed(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	source.AssertNotCalled(t, "ListAuctions", mock.Anything, mock.Anything)
	locker.AssertNotCalled(t, "Unlock", mock.Anything, mock.Anything)
}

func TestSeeder_ReleasesLock(t *testing.T) {
	repo := mocks.NewInMemoryItemRepo()
	source := new(mocks.MockAuctionSource)
	source.On("ListAuctions", mock.Anything, mock.Anything).Return([]auctionDomain.AuctionSnapshot{{ID: "A1", Title: "Car"}}, nil)
	locker := new(mocks.MockLocker)
	locker.On("TryLock", mock.Anything, auctionDomain.SeedLockKey, mock.Anything).Return(true, nil).Once()
	locker.On("Unlock", mock.Anything, auctionDomain.SeedLockKey).Return(nil).Once()
	s := NewSeeder(source, repo, newTestProjector(repo), locker, time.Millisecond, zap.NewNop())

	n, err := s.Seed(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	locker.AssertExpectations(t)
}
