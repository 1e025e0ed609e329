package repository

import (
	"context"

	"app/internal/domain/model"
)

type FlowerRepository interface {
	FindByID(ctx context.Context, flowerID int64) (model.Flower, error)
	List(ctx context.Context, page int, limit int, activeOnly bool) ([]model.Flower, int64, error)
	Create(ctx context.Context, flower model.Flower) (int64, error)
	Update(ctx context.Context, flower model.Flower) error
	Delete(ctx context.Context, flowerID int64) error

	// 在庫の現在値を設定
	SetStock(ctx context.Context, flowerID int64, newStock int64) error

	// 在庫が足りるときだけ減算（check-then-decrementを1文で）
	DecreaseStockIfEnough(ctx context.Context, flowerID int64, qty int64) (bool, error)

	// 在庫戻し（明示的なキャンセル操作など）
	IncreaseStock(ctx context.Context, flowerID int64, qty int64) error
}
