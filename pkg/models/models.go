package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the side of a trade order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid reports whether s is a known order side.
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus is the lifecycle status of a trade order.
// FILLED and CANCELED are terminal; no further transitions are permitted.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
)

// ActiveStatuses are the statuses eligible for matching.
var ActiveStatuses = []OrderStatus{StatusPending, StatusPartiallyFilled}

// TransactionType distinguishes money movements on the currency ledger
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionDeposit || t == TransactionWithdrawal
}

// CurrencyCode is the single settlement currency. Buy orders lock and spend
// it; sellers are credited in it.
const CurrencyCode = "TRY"

// assetCodes is the set of codes the ledger accepts. TRY is a balance code
// but not an orderable instrument.
var assetCodes = map[string]bool{
	CurrencyCode: true,
	"GARAN":      true,
	"ING":        true,
	"SASA":       true,
}

// ValidAssetCode reports whether code names a known ledger asset.
func ValidAssetCode(code string) bool {
	return assetCodes[code]
}

// OrderableAssetCode reports whether code can be traded against the currency.
func OrderableAssetCode(code string) bool {
	return assetCodes[code] && code != CurrencyCode
}

// Customer represents a brokerage customer. The enabled flag gates all
// trading activity.
type Customer struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string    `json:"name" validate:"required,min=1,max=100"`
	Surname   string    `json:"surname" validate:"required,min=1,max=100"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset represents a customer's balance in one asset code.
// Size is the total owned amount, UsableSize the unreserved part;
// 0 <= UsableSize <= Size holds at all times. Size - UsableSize is the
// amount locked by open orders.
type Asset struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CustomerID uuid.UUID       `json:"customer_id" gorm:"type:uuid;uniqueIndex:idx_assets_customer_code"`
	AssetCode  string          `json:"asset_code" gorm:"uniqueIndex:idx_assets_customer_code"`
	Size       decimal.Decimal `json:"size" gorm:"type:decimal(32,8)"`
	UsableSize decimal.Decimal `json:"usable_size" gorm:"type:decimal(32,8)"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TradeOrder represents a limit order. Size is the remaining unfilled
// quantity; it decreases monotonically as the order fills. Price is immutable
// after creation. CreateDate is the price-time priority tie-break.
type TradeOrder struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CustomerID uuid.UUID       `json:"customer_id" gorm:"type:uuid;index"`
	AssetCode  string          `json:"asset_code" gorm:"index"`
	Side       OrderSide       `json:"side"`
	Size       decimal.Decimal `json:"size" gorm:"type:decimal(32,8)"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(32,8)"`
	Status     OrderStatus     `json:"status" gorm:"index"`
	CreateDate time.Time       `json:"create_date" gorm:"index"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Active reports whether the order is still eligible for matching or fills.
func (o *TradeOrder) Active() bool {
	return o.Status == StatusPending || o.Status == StatusPartiallyFilled
}

// ReservedAmount is the ledger amount still locked for the order: the
// remaining cost at the limit price for buys, the remaining quantity for
// sells.
func (o *TradeOrder) ReservedAmount() decimal.Decimal {
	if o.Side == SideBuy {
		return o.Size.Mul(o.Price)
	}
	return o.Size
}

// ReservedAssetCode is the ledger asset the order's reservation lives in.
func (o *TradeOrder) ReservedAssetCode() string {
	if o.Side == SideBuy {
		return CurrencyCode
	}
	return o.AssetCode
}

// Trade is the immutable record of one execution between a buy and a sell
// order. Never updated or deleted.
type Trade struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	BuyOrderID    uuid.UUID       `json:"buy_order_id" gorm:"type:uuid;index"`
	SellOrderID   uuid.UUID       `json:"sell_order_id" gorm:"type:uuid;index"`
	AssetCode     string          `json:"asset_code" gorm:"index"`
	ExecutedPrice decimal.Decimal `json:"executed_price" gorm:"type:decimal(32,8)"`
	ExecutedSize  decimal.Decimal `json:"executed_size" gorm:"type:decimal(32,8)"`
	ExecutionDate time.Time       `json:"execution_date"`
}

// Transaction represents a deposit or withdrawal of currency. Processed
// stays false when the ledger leg failed; the failure is surfaced to the
// caller and the row remains queryable.
type Transaction struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CustomerID uuid.UUID       `json:"customer_id" gorm:"type:uuid;index"`
	Type       TransactionType `json:"type"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(32,8)"`
	Processed  bool            `json:"processed"`
	CreateDate time.Time       `json:"create_date"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BalanceLockKey is the keyed-mutex key serializing ledger operations on one
// (customer, asset) balance.
func BalanceLockKey(customerID uuid.UUID, assetCode string) string {
	return "asset:" + customerID.String() + ":" + assetCode
}

// OrderLockKey is the keyed-mutex key guarding state transitions of one order.
func OrderLockKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}
