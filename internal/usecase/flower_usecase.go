package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type FlowerUsecase struct {
	flowers repo.FlowerRepository
}

func NewFlowerUsecase(flowers repo.FlowerRepository) *FlowerUsecase {
	return &FlowerUsecase{flowers: flowers}
}

type FlowerInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

func (u *FlowerUsecase) List(ctx context.Context, page int, limit int, includeInactive bool) ([]model.Flower, int64, error) {
	return u.flowers.List(ctx, page, limit, !includeInactive)
}

func (u *FlowerUsecase) Get(ctx context.Context, flowerID int64) (model.Flower, error) {
	if flowerID <= 0 {
		return model.Flower{}, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	f, err := u.flowers.FindByID(ctx, flowerID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Flower{}, ErrFlowerNotFound
	}
	if err != nil {
		return model.Flower{}, err
	}
	return f, nil
}

func (u *FlowerUsecase) Create(ctx context.Context, in FlowerInput) (model.Flower, error) {
	if err := validateFlowerInput(in); err != nil {
		return model.Flower{}, err
	}

	id, err := u.flowers.Create(ctx, model.Flower{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return model.Flower{}, err
	}
	return u.Get(ctx, id)
}

func (u *FlowerUsecase) Update(ctx context.Context, flowerID int64, in FlowerInput) (model.Flower, error) {
	if flowerID <= 0 {
		return model.Flower{}, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	if err := validateFlowerInput(in); err != nil {
		return model.Flower{}, err
	}

	//priceの変更は過去のOrderItemスナップショットに影響しない
	err := u.flowers.Update(ctx, model.Flower{
		ID:          flowerID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		IsActive:    in.IsActive,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return model.Flower{}, ErrFlowerNotFound
	}
	if err != nil {
		return model.Flower{}, err
	}
	return u.Get(ctx, flowerID)
}

func (u *FlowerUsecase) Delete(ctx context.Context, flowerID int64) error {
	if flowerID <= 0 {
		return fmt.Errorf("%w: invalid id", ErrValidation)
	}
	err := u.flowers.Delete(ctx, flowerID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrFlowerNotFound
	}
	return err
}

func (u *FlowerUsecase) SetStock(ctx context.Context, flowerID int64, newStock int64) error {
	if flowerID <= 0 {
		return fmt.Errorf("%w: invalid id", ErrValidation)
	}
	if newStock < 0 {
		return fmt.Errorf("%w: negative stock", ErrValidation)
	}
	err := u.flowers.SetStock(ctx, flowerID, newStock)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrFlowerNotFound
	}
	return err
}

func validateFlowerInput(in FlowerInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrValidation)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrValidation)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: negative stock", ErrValidation)
	}
	return nil
}
