package repository

import (
	"context"

	"app/internal/domain/model"
)

type TransactionRepository interface {
	FindByID(ctx context.Context, transactionID string) (model.Transaction, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Transaction, int64, error)
	Create(ctx context.Context, tx model.Transaction) error

	UpdateStatus(ctx context.Context, transactionID string, status model.TransactionStatus) error

	// 現在statusがfromのときだけ更新。更新できたらtrue。
	UpdateStatusIf(ctx context.Context, transactionID string, from model.TransactionStatus, to model.TransactionStatus) (bool, error)

	// webhook等の生ペイロードを監査用に残す
	SaveGatewayData(ctx context.Context, transactionID string, payload []byte) error
}
