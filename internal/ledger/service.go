// Package ledger is the per-(customer, asset) balance store. Every balance
// carries a total size and a usable size; the difference is the amount
// reserved by open orders. All operations preserve 0 <= usable <= size.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/pkg/errors"
	"github.com/Aidin1998/brokerage/pkg/keylock"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Ledger defines the balance operations the rest of the core depends on
type Ledger interface {
	ListAssets(ctx context.Context, customerID uuid.UUID) ([]*models.Asset, error)
	GetAsset(ctx context.Context, customerID uuid.UUID, assetCode string) (*models.Asset, error)
	Assign(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error
	Lock(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error
	Release(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error
}

// Service implements Ledger on a gorm store. Per-key serialization is done
// with a shared keyed mutex; each public operation runs in its own database
// transaction. The *Tx variants compose into a caller-owned transaction
// (the matching engine's settlement unit of work) and require the caller to
// already hold the balance keys.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	locks  *keylock.KeyedMutex
}

var _ Ledger = (*Service)(nil)

// NewService creates a new ledger service
func NewService(logger *zap.Logger, db *gorm.DB, locks *keylock.KeyedMutex) *Service {
	return &Service{logger: logger, db: db, locks: locks}
}

// ListAssets returns all balances of a customer
func (s *Service) ListAssets(ctx context.Context, customerID uuid.UUID) ([]*models.Asset, error) {
	var assets []*models.Asset
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("asset_code").Find(&assets).Error; err != nil {
		return nil, errors.New("failed to list assets").Wrap(err)
	}
	return assets, nil
}

// GetAsset returns one balance, or nil when the customer holds none of the
// asset.
func (s *Service) GetAsset(ctx context.Context, customerID uuid.UUID, assetCode string) (*models.Asset, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).Where("customer_id = ? AND asset_code = ?", customerID, assetCode).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New("failed to find asset").Wrap(err)
	}
	return &asset, nil
}

// Assign credits amount to both size and usable size, creating the balance
// row on first credit.
func (s *Service) Assign(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	return s.run(ctx, customerID, assetCode, amount, s.AssignTx)
}

// Withdraw debits amount from both size and usable size. Fails with
// InsufficientBalance when the customer holds no such asset or the usable
// size is short.
func (s *Service) Withdraw(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	return s.run(ctx, customerID, assetCode, amount, s.WithdrawTx)
}

// Lock reserves amount against open-order exposure: usable size shrinks,
// total size is untouched. Same failure rule as Withdraw.
func (s *Service) Lock(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	return s.run(ctx, customerID, assetCode, amount, s.LockTx)
}

// Release returns amount to the usable size, undoing a prior Lock or
// pre-crediting funds about to be withdrawn during settlement.
func (s *Service) Release(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	return s.run(ctx, customerID, assetCode, amount, s.ReleaseTx)
}

type txOp func(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error

// run serializes the operation on its balance key and wraps it in a
// transaction of its own.
func (s *Service) run(ctx context.Context, customerID uuid.UUID, assetCode string, amount decimal.Decimal, op txOp) error {
	if err := validateAmount(assetCode, amount); err != nil {
		return err
	}
	unlock := s.locks.Lock(models.BalanceLockKey(customerID, assetCode))
	defer unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return op(tx, customerID, assetCode, amount)
	})
}

// AssignTx is Assign inside a caller-owned transaction. The caller must hold
// the balance key.
func (s *Service) AssignTx(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	asset, err := s.findOrCreate(tx, customerID, assetCode)
	if err != nil {
		return err
	}
	asset.Size = asset.Size.Add(amount)
	asset.UsableSize = asset.UsableSize.Add(amount)
	return s.save(tx, asset)
}

// WithdrawTx is Withdraw inside a caller-owned transaction.
func (s *Service) WithdrawTx(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	asset, err := s.findForDebit(tx, customerID, assetCode, amount)
	if err != nil {
		return err
	}
	asset.Size = asset.Size.Sub(amount)
	asset.UsableSize = asset.UsableSize.Sub(amount)
	return s.save(tx, asset)
}

// LockTx is Lock inside a caller-owned transaction.
func (s *Service) LockTx(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	asset, err := s.findForDebit(tx, customerID, assetCode, amount)
	if err != nil {
		return err
	}
	asset.UsableSize = asset.UsableSize.Sub(amount)
	return s.save(tx, asset)
}

// ReleaseTx is Release inside a caller-owned transaction.
func (s *Service) ReleaseTx(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) error {
	asset, err := s.findOrCreate(tx, customerID, assetCode)
	if err != nil {
		return err
	}
	asset.UsableSize = asset.UsableSize.Add(amount)
	return s.save(tx, asset)
}

func (s *Service) findOrCreate(tx *gorm.DB, customerID uuid.UUID, assetCode string) (*models.Asset, error) {
	var asset models.Asset
	err := tx.Where("customer_id = ? AND asset_code = ?", customerID, assetCode).First(&asset).Error
	if err == nil {
		return &asset, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("failed to find asset").Wrap(err)
	}

	now := time.Now()
	asset = models.Asset{
		ID:         uuid.New(),
		CustomerID: customerID,
		AssetCode:  assetCode,
		Size:       decimal.Zero,
		UsableSize: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Create(&asset).Error; err != nil {
		return nil, errors.New("failed to create asset").Wrap(err)
	}
	s.logger.Debug("asset row created",
		zap.String("customer_id", customerID.String()),
		zap.String("asset_code", assetCode))
	return &asset, nil
}

// findForDebit loads the balance and checks the usable size covers amount.
func (s *Service) findForDebit(tx *gorm.DB, customerID uuid.UUID, assetCode string, amount decimal.Decimal) (*models.Asset, error) {
	var asset models.Asset
	err := tx.Where("customer_id = ? AND asset_code = ?", customerID, assetCode).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrInsufficientBalance.Explain("no %s balance for customer", assetCode)
		}
		return nil, errors.New("failed to find asset").Wrap(err)
	}
	if asset.UsableSize.LessThan(amount) {
		s.logger.Warn("insufficient usable balance",
			zap.String("customer_id", customerID.String()),
			zap.String("asset_code", assetCode),
			zap.String("requested", amount.String()),
			zap.String("usable", asset.UsableSize.String()))
		return nil, errors.ErrInsufficientBalance.Explain(
			"insufficient %s balance: requested %s, usable %s", assetCode, amount, asset.UsableSize)
	}
	return &asset, nil
}

func (s *Service) save(tx *gorm.DB, asset *models.Asset) error {
	asset.UpdatedAt = time.Now()
	if err := tx.Save(asset).Error; err != nil {
		return errors.New("failed to save asset").Wrap(err)
	}
	return nil
}

func validateAmount(assetCode string, amount decimal.Decimal) error {
	if !models.ValidAssetCode(assetCode) {
		return errors.ErrInvalidArgument.Explain("unknown asset code %q", assetCode)
	}
	if !amount.IsPositive() {
		return errors.ErrInvalidArgument.Explain("amount must be positive, got %s", amount)
	}
	return nil
}
