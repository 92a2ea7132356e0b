// Package matching pairs active buy and sell orders for one asset code by
// price-time priority and settles each matched pair atomically against the
// ledger.
package matching

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/internal/ledger"
	"github.com/Aidin1998/brokerage/internal/trade"
	"github.com/Aidin1998/brokerage/pkg/errors"
	"github.com/Aidin1998/brokerage/pkg/keylock"
	"github.com/Aidin1998/brokerage/pkg/metrics"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Engine runs matching passes. It has no background scheduler; MatchOrders
// is triggered externally and evaluates sequentially, since price-time
// priority requires order-preserving evaluation within one asset code.
type Engine struct {
	logger *zap.Logger
	db     *gorm.DB
	ledger *ledger.Service
	trades *trade.Recorder
	locks  *keylock.KeyedMutex
}

// NewEngine creates a new matching engine
func NewEngine(logger *zap.Logger, db *gorm.DB, ledgerSvc *ledger.Service, trades *trade.Recorder, locks *keylock.KeyedMutex) *Engine {
	return &Engine{logger: logger, db: db, ledger: ledgerSvc, trades: trades, locks: locks}
}

// MatchOrders runs one matching pass for assetCode and returns the number of
// trades executed. Buy orders are visited highest price first (oldest first
// at equal price), sell orders lowest price first. A settlement failure rolls
// back the trade being applied and aborts the pass with the error surfaced.
func (e *Engine) MatchOrders(ctx context.Context, assetCode string) (int, error) {
	if !models.OrderableAssetCode(assetCode) {
		return 0, errors.ErrInvalidArgument.Explain("asset code %q is not orderable", assetCode)
	}

	start := time.Now()
	defer func() {
		metrics.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	buys, err := e.loadActive(ctx, assetCode, models.SideBuy, "price DESC, create_date ASC")
	if err != nil {
		return 0, err
	}
	sells, err := e.loadActive(ctx, assetCode, models.SideSell, "price ASC, create_date ASC")
	if err != nil {
		return 0, err
	}

	e.logger.Info("matching pass started",
		zap.String("asset_code", assetCode),
		zap.Int("buy_orders", len(buys)),
		zap.Int("sell_orders", len(sells)))

	trades := 0
	for _, buy := range buys {
		for i := 0; i < len(sells); {
			sell := sells[i]

			// Sells ascend by price; once the cross fails it fails for
			// every later sell too.
			if buy.Price.LessThan(sell.Price) {
				break
			}
			// Self-trade prevention.
			if buy.CustomerID == sell.CustomerID {
				i++
				continue
			}

			executed, err := e.executeTrade(ctx, buy, sell)
			if err != nil {
				return trades, err
			}
			if executed {
				trades++
			}

			if !sell.Active() {
				sells = append(sells[:i], sells[i+1:]...)
			} else {
				i++
			}
			if !buy.Active() {
				break
			}
		}
	}

	e.logger.Info("matching pass completed",
		zap.String("asset_code", assetCode),
		zap.Int("trades", trades),
		zap.Duration("elapsed", time.Since(start)))
	return trades, nil
}

func (e *Engine) loadActive(ctx context.Context, assetCode string, side models.OrderSide, ordering string) ([]*models.TradeOrder, error) {
	var orders []*models.TradeOrder
	err := e.db.WithContext(ctx).
		Where("asset_code = ? AND side = ? AND status IN ?", assetCode, side, models.ActiveStatuses).
		Order(ordering).
		Find(&orders).Error
	if err != nil {
		return nil, errors.New("failed to load candidate orders").Wrap(err)
	}
	return orders, nil
}

// executeTrade settles one matched pair as a single atomic unit: six ledger
// legs, both order mutations and the trade record commit or roll back
// together. All keys are taken in one canonical sorted acquisition, so
// concurrent passes or cancellations addressing the same orders cannot
// deadlock. Both orders are re-read under the lock; if either went inactive
// meanwhile the pair is skipped without effects and the fresh state is
// reported back through the order pointers.
func (e *Engine) executeTrade(ctx context.Context, buy, sell *models.TradeOrder) (bool, error) {
	unlock := e.locks.Lock(
		models.OrderLockKey(buy.ID),
		models.OrderLockKey(sell.ID),
		models.BalanceLockKey(buy.CustomerID, models.CurrencyCode),
		models.BalanceLockKey(buy.CustomerID, buy.AssetCode),
		models.BalanceLockKey(sell.CustomerID, models.CurrencyCode),
		models.BalanceLockKey(sell.CustomerID, sell.AssetCode),
	)
	defer unlock()

	executed := false
	var record *models.Trade
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var freshBuy, freshSell models.TradeOrder
		if err := tx.First(&freshBuy, "id = ?", buy.ID).Error; err != nil {
			return errors.New("failed to reload buy order").Wrap(err)
		}
		if err := tx.First(&freshSell, "id = ?", sell.ID).Error; err != nil {
			return errors.New("failed to reload sell order").Wrap(err)
		}
		*buy = freshBuy
		*sell = freshSell

		// A concurrent cancel or pass may have retired either side.
		if !freshBuy.Active() || !freshSell.Active() {
			return nil
		}

		executionSize := decimal.Min(freshBuy.Size, freshSell.Size)
		executionPrice := freshSell.Price // maker price rule
		tradeAmount := executionPrice.Mul(executionSize)
		buyerReserved := executionSize.Mul(freshBuy.Price)

		buyerID := freshBuy.CustomerID
		sellerID := freshSell.CustomerID
		assetCode := freshBuy.AssetCode

		// Settlement legs. The buyer reserved at its own limit price, which
		// may exceed the trade amount on price improvement; the difference
		// flows back through the release.
		if err := e.ledger.ReleaseTx(tx, buyerID, models.CurrencyCode, buyerReserved); err != nil {
			return err
		}
		if err := e.ledger.WithdrawTx(tx, buyerID, models.CurrencyCode, tradeAmount); err != nil {
			return err
		}
		if err := e.ledger.ReleaseTx(tx, sellerID, assetCode, executionSize); err != nil {
			return err
		}
		if err := e.ledger.WithdrawTx(tx, sellerID, assetCode, executionSize); err != nil {
			return err
		}
		if err := e.ledger.AssignTx(tx, buyerID, assetCode, executionSize); err != nil {
			return err
		}
		if err := e.ledger.AssignTx(tx, sellerID, models.CurrencyCode, tradeAmount); err != nil {
			return err
		}

		applyFill(&freshBuy, executionSize)
		applyFill(&freshSell, executionSize)
		if err := tx.Save(&freshBuy).Error; err != nil {
			return errors.New("failed to save buy order").Wrap(err)
		}
		if err := tx.Save(&freshSell).Error; err != nil {
			return errors.New("failed to save sell order").Wrap(err)
		}

		record = &models.Trade{
			BuyOrderID:    freshBuy.ID,
			SellOrderID:   freshSell.ID,
			AssetCode:     assetCode,
			ExecutedPrice: executionPrice,
			ExecutedSize:  executionSize,
		}
		if err := e.trades.SaveTx(tx, record); err != nil {
			return err
		}

		*buy = freshBuy
		*sell = freshSell
		executed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if executed {
		metrics.TradesExecuted.WithLabelValues(buy.AssetCode).Inc()
		e.logger.Info("trade executed",
			zap.String("trade_id", record.ID.String()),
			zap.String("buy_order_id", buy.ID.String()),
			zap.String("sell_order_id", sell.ID.String()),
			zap.String("asset_code", buy.AssetCode),
			zap.String("executed_price", record.ExecutedPrice.String()),
			zap.String("executed_size", record.ExecutedSize.String()))
	}
	return executed, nil
}

// applyFill decrements the remaining size and derives the fill status:
// FILLED at exactly zero, PARTIALLY_FILLED otherwise.
func applyFill(o *models.TradeOrder, executionSize decimal.Decimal) {
	o.Size = o.Size.Sub(executionSize)
	if o.Size.IsZero() {
		o.Status = models.StatusFilled
	} else {
		o.Status = models.StatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()
}
