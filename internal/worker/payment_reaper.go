package worker

import (
	"context"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/labstack/gommon/log"
)

// PaymentReaper は支払いが完了しないままのPENDING注文を定期的にキャンセルする。
// 自動キャンセルの唯一の経路。PENDINGのときだけ書き込む条件付き更新なので、
// リコンサイラが先にPAIDへ確定した注文には手を出せない。
type PaymentReaper struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

func NewPaymentReaper(tx repo.TransactionManager, orders repo.OrderRepository, interval, timeout time.Duration, logger *log.Logger) *PaymentReaper {
	if logger == nil {
		logger = log.New("reaper")
	}
	return &PaymentReaper{
		tx:       tx,
		orders:   orders,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start はctxが終わるまでtickごとにSweepを回すgoroutineを起動する。
func (p *PaymentReaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("payment reaper stopped")
				return
			case <-ticker.C:
				p.Sweep(ctx)
			}
		}
	}()
}

// Sweep は1回分の掃除。注文ごとのエラーはログして続行する。
func (p *PaymentReaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.timeout)

	expired, err := p.orders.ListExpiredPending(ctx, cutoff)
	if err != nil {
		p.logger.Errorf("list expired orders: %v", err)
		return
	}

	for _, o := range expired {
		if err := p.cancelOne(ctx, o); err != nil {
			p.logger.Errorf("cancel order %d: %v", o.ID, err)
		}
	}
}

func (p *PaymentReaper) cancelOne(ctx context.Context, o model.Order) error {
	return p.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//PENDING以外になっていたら0行更新（別tickや別経路が先に処理済み）
		ok, err := r.Orders().UpdateStatusIf(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		//紐づくTransactionも落とす。在庫は戻さない。
		if o.TransactionID != nil {
			if _, err := r.Transactions().UpdateStatusIf(ctx, *o.TransactionID,
				model.TransactionStatusPending, model.TransactionStatusCancelled); err != nil {
				return err
			}
		}

		p.logger.Infof("cancelled expired order %d", o.ID)
		return nil
	})
}
