package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionGormRepository struct {
	db *gorm.DB
}

func NewTransactionGormRepository(db *gorm.DB) *TransactionGormRepository {
	return &TransactionGormRepository{db: db}
}

func (r *TransactionGormRepository) FindByID(ctx context.Context, transactionID string) (model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", transactionID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Transaction{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

func (r *TransactionGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Transaction, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("from_user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Transaction{}, 0, err
	}

	var items []model.Transaction
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("from_user_id = ?", userID).
		Order("transaction_date desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Transaction{}, 0, err
	}
	return items, total, nil
}

func (r *TransactionGormRepository) Create(ctx context.Context, tx model.Transaction) error {
	return r.db.WithContext(ctx).Create(&tx).Error
}

func (r *TransactionGormRepository) UpdateStatus(ctx context.Context, transactionID string, status model.TransactionStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", transactionID).
		Update("status", status)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 条件付き更新。リーパーとリコンサイラが同じ行を取り合っても片方しか勝てない。
func (r *TransactionGormRepository) UpdateStatusIf(ctx context.Context, transactionID string, from model.TransactionStatus, to model.TransactionStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", transactionID, from).
		Update("status", to)

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TransactionGormRepository) SaveGatewayData(ctx context.Context, transactionID string, payload []byte) error {
	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", transactionID).
		Update("gateway_data", datatypes.JSON(payload))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
