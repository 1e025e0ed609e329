package repository

import (
	"context"
	"time"

	"app/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByPaymentCode(ctx context.Context, code int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// 現在statusがfromのときだけstatusをtoへ更新。更新できたらtrue。
	UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error

	// 支払い確定：PENDINGのときだけ status=PAID / paid_at / transaction_id をまとめて書く。
	// 書けたらtrue（キャンセル済み注文は復活しない）。
	MarkPaid(ctx context.Context, orderID int64, transactionID string, paidAt time.Time) (bool, error)

	// payment_codeの割り当て。既に割り当て済みならfalse。
	AssignPaymentCode(ctx context.Context, orderID int64, code int64, transactionID string) (bool, error)
	// ゲートウェイ呼び出し失敗時の巻き戻し
	ClearPaymentCode(ctx context.Context, orderID int64) error

	// 期限切れPENDING注文（payment_code割り当て済み）の一覧
	ListExpiredPending(ctx context.Context, olderThan time.Time) ([]model.Order, error)

	// 管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
