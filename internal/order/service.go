// Package order implements the trade order lifecycle: creation with funds
// reservation, cancellation with funds release, and customer-scoped listing.
package order

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
	"github.com/Aidin1998/brokerage/pkg/keylock"
	"github.com/Aidin1998/brokerage/pkg/metrics"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Service manages trade orders
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	customers *customer.Service
	ledger    *ledger.Service
	locks     *keylock.KeyedMutex
}

// NewService creates a new order service
func NewService(logger *zap.Logger, db *gorm.DB, customers *customer.Service, ledgerSvc *ledger.Service, locks *keylock.KeyedMutex) *Service {
	return &Service{logger: logger, db: db, customers: customers, ledger: ledgerSvc, locks: locks}
}

// Create places a limit order for an enabled customer. Buy orders reserve
// size*price of currency, sell orders reserve the quantity of the asset.
// A failed reservation aborts creation; no order row is persisted.
func (s *Service) Create(ctx context.Context, customerID uuid.UUID, assetCode string, side models.OrderSide, size, price decimal.Decimal) (*models.TradeOrder, error) {
	if !side.Valid() {
		return nil, errors.ErrInvalidArgument.Explain("unknown order side %q", side)
	}
	if !models.OrderableAssetCode(assetCode) {
		return nil, errors.ErrInvalidArgument.Explain("asset code %q is not orderable", assetCode)
	}
	if !size.IsPositive() || !price.IsPositive() {
		return nil, errors.ErrInvalidArgument.Explain("size and price must be positive")
	}

	if _, err := s.customers.GetEnabled(ctx, customerID); err != nil {
		return nil, err
	}

	order := &models.TradeOrder{
		ID:         uuid.New(),
		CustomerID: customerID,
		AssetCode:  assetCode,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     models.StatusPending,
		CreateDate: time.Now(),
		UpdatedAt:  time.Now(),
	}

	// Reservation and persistence commit or roll back together; at no point
	// does a reservation exist without its order.
	reserveCode := order.ReservedAssetCode()
	reserveAmount := order.ReservedAmount()
	unlock := s.locks.Lock(models.BalanceLockKey(customerID, reserveCode))
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lerr := s.ledger.LockTx(tx, customerID, reserveCode, reserveAmount); lerr != nil {
			return lerr
		}
		if cerr := tx.Create(order).Error; cerr != nil {
			return errors.New("failed to persist order").Wrap(cerr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(side)).Inc()
	s.logger.Info("trade order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("asset_code", assetCode),
		zap.String("side", string(side)),
		zap.String("size", size.String()),
		zap.String("price", price.String()))
	return order, nil
}

// Cancel cancels a PENDING order and releases its reserved funds.
// PARTIALLY_FILLED orders are not cancelable. Terminal orders fail with
// OrderNotFound; a repeated cancel never double-releases.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.getPending(ctx, orderID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(
		models.OrderLockKey(orderID),
		models.BalanceLockKey(order.CustomerID, order.ReservedAssetCode()),
	)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-validate under the lock: a matching pass may have filled the
		// order between the unlocked read and here.
		var fresh models.TradeOrder
		ferr := tx.Where("id = ? AND status = ?", orderID, models.StatusPending).First(&fresh).Error
		if ferr != nil {
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return errors.ErrOrderNotFound
			}
			return errors.New("failed to find order").Wrap(ferr)
		}

		if rerr := s.ledger.ReleaseTx(tx, fresh.CustomerID, fresh.ReservedAssetCode(), fresh.ReservedAmount()); rerr != nil {
			return rerr
		}

		fresh.Status = models.StatusCanceled
		fresh.UpdatedAt = time.Now()
		if serr := tx.Save(&fresh).Error; serr != nil {
			return errors.New("failed to save order").Wrap(serr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.OrdersCanceled.Inc()
	s.logger.Info("trade order canceled", zap.String("order_id", orderID.String()))
	return nil
}

// List returns a page of the customer's orders created inside the date range
func (s *Service) List(ctx context.Context, customerID uuid.UUID, startDate, endDate time.Time, page, size int) ([]*models.TradeOrder, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 10
	}
	var orders []*models.TradeOrder
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND create_date BETWEEN ? AND ?", customerID, startDate, endDate).
		Order("create_date ASC").
		Offset(page * size).
		Limit(size).
		Find(&orders).Error
	if err != nil {
		return nil, errors.New("failed to list orders").Wrap(err)
	}
	return orders, nil
}

// CustomerID returns the owner of a PENDING order. It shares the Cancel
// precondition so the access-control collaborator sees the same failures.
func (s *Service) CustomerID(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	order, err := s.getPending(ctx, orderID)
	if err != nil {
		return uuid.Nil, err
	}
	return order.CustomerID, nil
}

func (s *Service) getPending(ctx context.Context, orderID uuid.UUID) (*models.TradeOrder, error) {
	var order models.TradeOrder
	err := s.db.WithContext(ctx).Where("id = ? AND status = ?", orderID, models.StatusPending).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, errors.New("failed to find order").Wrap(err)
	}
	return &order, nil
}
