// Package transaction records deposits and withdrawals of the settlement
// currency and applies them to the ledger.
package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/internal/customer"
	"github.com/Aidin1998/brokerage/internal/ledger"
	"github.com/Aidin1998/brokerage/pkg/errors"
	"github.com/Aidin1998/brokerage/pkg/metrics"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Service records and processes money movements
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	customers *customer.Service
	ledger    *ledger.Service
}

// NewService creates a new transaction service
func NewService(logger *zap.Logger, db *gorm.DB, customers *customer.Service, ledgerSvc *ledger.Service) *Service {
	return &Service{logger: logger, db: db, customers: customers, ledger: ledgerSvc}
}

// Record persists a deposit or withdrawal and applies the matching ledger
// leg. The row is written before processing; when the ledger leg fails the
// error is surfaced to the caller and the row stays processed=false as an
// explicit, queryable state.
func (s *Service) Record(ctx context.Context, customerID uuid.UUID, txType models.TransactionType, amount decimal.Decimal) (*models.Transaction, error) {
	if !txType.Valid() {
		return nil, errors.ErrInvalidArgument.Explain("unknown transaction type %q", txType)
	}
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidArgument.Explain("amount must be positive, got %s", amount)
	}
	if _, err := s.customers.GetEnabled(ctx, customerID); err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &models.Transaction{
		ID:         uuid.New(),
		CustomerID: customerID,
		Type:       txType,
		Amount:     amount,
		Processed:  false,
		CreateDate: now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, errors.New("failed to persist transaction").Wrap(err)
	}

	var lerr error
	switch txType {
	case models.TransactionDeposit:
		lerr = s.ledger.Assign(ctx, customerID, models.CurrencyCode, amount)
	case models.TransactionWithdrawal:
		lerr = s.ledger.Withdraw(ctx, customerID, models.CurrencyCode, amount)
	}
	if lerr != nil {
		metrics.TransactionsProcessed.WithLabelValues(string(txType), "failed").Inc()
		s.logger.Warn("transaction processing failed",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("customer_id", customerID.String()),
			zap.String("type", string(txType)),
			zap.Error(lerr))
		return nil, lerr
	}

	txn.Processed = true
	txn.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(txn).Error; err != nil {
		return nil, errors.New("failed to mark transaction processed").Wrap(err)
	}

	metrics.TransactionsProcessed.WithLabelValues(string(txType), "processed").Inc()
	s.logger.Info("transaction processed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("type", string(txType)),
		zap.String("amount", amount.String()))
	return txn, nil
}

// List returns the customer's transactions, newest first
func (s *Service) List(ctx context.Context, customerID uuid.UUID) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("create_date DESC").
		Find(&txns).Error
	if err != nil {
		return nil, errors.New("failed to list transactions").Wrap(err)
	}
	return txns, nil
}
