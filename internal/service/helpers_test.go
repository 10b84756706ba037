package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	home    = models.GeoPoint{Lat: 40.7128, Lng: -74.0060}
	faraway = models.GeoPoint{Lat: 40.7580, Lng: -73.9855}
)

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// seedUsers stores a caregiver cg1 offering Companionship at 200.00 and a
// client cl1 living at home.
func seedUsers(t *testing.T, store *repository.MemoryStore, blocked ...string) {
	t.Helper()
	users := repository.NewCollection[models.User](store, models.CollectionUsers)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, "cg1", &models.User{
		ID:   "cg1",
		Name: "Ana",
		Role: &models.CaregiverProfile{
			Services: []models.ServiceOffering{
				{Name: "Companionship", Price: 20000},
				{Name: "Nursing", Price: 35000},
			},
			BlockedDates: append([]string{}, blocked...),
		},
		Wallet: &models.Wallet{Transactions: []models.WalletTransaction{}},
	}))
	require.NoError(t, users.Create(ctx, "cl1", &models.User{
		ID:     "cl1",
		Name:   "Ben",
		Role:   &models.ClientProfile{Address: "1 Main St", Location: home},
		Wallet: &models.Wallet{Transactions: []models.WalletTransaction{}},
	}))
}

type fakeJob struct {
	owner string
	name  string
	delay time.Duration
	run   func(ctx context.Context) error
}

// fakeJobs queues jobs until the test runs them.
type fakeJobs struct {
	mu   sync.Mutex
	jobs []fakeJob
}

func (f *fakeJobs) Schedule(owner string, delay time.Duration, name string, job func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, fakeJob{owner: owner, name: name, delay: delay, run: job})
}

func (f *fakeJobs) Cancel(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.jobs[:0]
	n := 0
	for _, j := range f.jobs {
		if j.owner == owner {
			n++
			continue
		}
		kept = append(kept, j)
	}
	f.jobs = kept
	return n
}

func (f *fakeJobs) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j.name)
	}
	return out
}

// runAll drains the queue and returns each job's error in order.
func (f *fakeJobs) runAll(ctx context.Context) []error {
	f.mu.Lock()
	jobs := f.jobs
	f.jobs = nil
	f.mu.Unlock()

	errs := make([]error, 0, len(jobs))
	for _, j := range jobs {
		errs = append(errs, j.run(ctx))
	}
	return errs
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Credit(ctx context.Context, userID string, amount models.Money, description, referenceID string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, description, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockLedger) Withdraw(ctx context.Context, userID string, amount models.Money, payoutKey string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, payoutKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockLedger) AddCredits(ctx context.Context, userID string, amount models.Money, method string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockLedger) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockLedger) Reconcile(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
