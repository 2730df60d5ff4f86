package services

import (
	"context"
	"reflect"
	"testing"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/internal/repository"
	"github.com/starledger/starbot/pkg/pg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&repository.AccountEntity{}, &repository.TransactionEntity{}, &repository.PromoCodeEntity{})
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

type MockPayoutGateway struct {
	mock.Mock
}

func (m *MockPayoutGateway) SubmitWithdrawal(ctx context.Context, req model.WithdrawalRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type ledgerFixture struct {
	service  *LedgerService
	accounts *repository.AccountRepository
	txns     *repository.TransactionRepository
	promos   *repository.PromoCodeRepository
	notifier *MockNotifier
	payout   *MockPayoutGateway
}

func setupLedger(t *testing.T, adminIDs ...int64) *ledgerFixture {
	db := setupTestDB(t)

	accounts := repository.NewAccountRepository(db)
	txns := repository.NewTransactionRepository(db)
	promos := repository.NewPromoCodeRepository(db)
	notifier := new(MockNotifier)
	payout := new(MockPayoutGateway)

	service := NewLedgerService(accounts, txns, promos, notifier, payout, RewardConfig{}, adminIDs)

	return &ledgerFixture{
		service:  service,
		accounts: accounts,
		txns:     txns,
		promos:   promos,
		notifier: notifier,
		payout:   payout,
	}
}
