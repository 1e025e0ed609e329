package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// TransactionはOrderより長生きするので単独で照会できる（統計など）。
type TransactionUsecase struct {
	transactions repo.TransactionRepository
}

func NewTransactionUsecase(transactions repo.TransactionRepository) *TransactionUsecase {
	return &TransactionUsecase{transactions: transactions}
}

type TransactionOutput struct {
	ID              string    `json:"id"`
	FromUserID      int64     `json:"from_user_id"`
	ToAccount       string    `json:"to_account"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status"`
	TransactionDate time.Time `json:"transaction_date"`
}

func (u *TransactionUsecase) Get(ctx context.Context, actorID int64, actorRole model.Role, transactionID string) (TransactionOutput, error) {
	if actorID <= 0 {
		return TransactionOutput{}, ErrUnauthorized
	}
	if transactionID == "" {
		return TransactionOutput{}, fmt.Errorf("%w: empty id", ErrValidation)
	}

	t, err := u.transactions.FindByID(ctx, transactionID)
	if errors.Is(err, repo.ErrNotFound) {
		return TransactionOutput{}, ErrTransactionNotFound
	}
	if err != nil {
		return TransactionOutput{}, err
	}

	//他人のtransactionは存在しない扱い
	if actorRole != model.RoleAdmin && t.FromUserID != actorID {
		return TransactionOutput{}, ErrTransactionNotFound
	}

	return toTransactionOutput(t), nil
}

func (u *TransactionUsecase) ListMine(ctx context.Context, actorID int64, page int, limit int) ([]TransactionOutput, int64, error) {
	if actorID <= 0 {
		return []TransactionOutput{}, 0, ErrUnauthorized
	}

	items, total, err := u.transactions.ListByUserID(ctx, actorID, page, limit)
	if err != nil {
		return []TransactionOutput{}, 0, err
	}

	outs := make([]TransactionOutput, 0, len(items))
	for _, t := range items {
		outs = append(outs, toTransactionOutput(t))
	}
	return outs, total, nil
}

func toTransactionOutput(t model.Transaction) TransactionOutput {
	return TransactionOutput{
		ID:              t.ID,
		FromUserID:      t.FromUserID,
		ToAccount:       t.ToAccount,
		Amount:          t.Amount,
		Status:          string(t.Status),
		TransactionDate: t.TransactionDate,
	}
}
