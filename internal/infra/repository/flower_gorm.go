package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type FlowerGormRepository struct {
	db *gorm.DB
}

func NewFlowerGormRepository(db *gorm.DB) *FlowerGormRepository {
	return &FlowerGormRepository{db: db}
}

func (r *FlowerGormRepository) FindByID(ctx context.Context, flowerID int64) (model.Flower, error) {
	var f model.Flower
	err := r.db.WithContext(ctx).Where("id = ?", flowerID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Flower{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Flower{}, err
	}
	return f, nil
}

func (r *FlowerGormRepository) List(ctx context.Context, page int, limit int, activeOnly bool) ([]model.Flower, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Flower{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Flower{}, 0, err
	}

	var items []model.Flower
	offset := (page - 1) * limit
	if err := q.Order("id asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Flower{}, 0, err
	}
	return items, total, nil
}

func (r *FlowerGormRepository) Create(ctx context.Context, flower model.Flower) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&flower).Error; err != nil {
		return 0, err
	}
	return flower.ID, nil
}

func (r *FlowerGormRepository) Update(ctx context.Context, flower model.Flower) error {
	res := r.db.WithContext(ctx).Model(&model.Flower{}).
		Where("id = ?", flower.ID).
		Updates(map[string]interface{}{
			"name":        flower.Name,
			"description": flower.Description,
			"price":       flower.Price,
			"is_active":   flower.IsActive,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *FlowerGormRepository) Delete(ctx context.Context, flowerID int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", flowerID).Delete(&model.Flower{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 在庫の現在値を設定
func (r *FlowerGormRepository) SetStock(ctx context.Context, flowerID int64, newStock int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Flower{}).
		Where("id = ?", flowerID).
		Update("stock", newStock)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 在庫が足りるときだけ減らす
func (r *FlowerGormRepository) DecreaseStockIfEnough(ctx context.Context, flowerID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Flower{}).
		Where("id = ? AND stock >= ?", flowerID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し
func (r *FlowerGormRepository) IncreaseStock(ctx context.Context, flowerID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Flower{}).
		Where("id = ?", flowerID).
		Update("stock", gorm.Expr("stock + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
