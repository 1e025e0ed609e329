package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemInput struct {
	FlowerID int64 `json:"flower_id"`
	Quantity int64 `json:"quantity"`
}

type CreateOrderInput struct {
	Items           []OrderItemInput
	ShippingAddress string
	ShippingFee     int64
}

type OrderItemOutput struct {
	FlowerID int64  `json:"flower_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	Status          string            `json:"status"`
	ShippingAddress string            `json:"shipping_address"`
	ShippingFee     int64             `json:"shipping_fee"`
	TotalAmount     int64             `json:"total_amount"`
	PaymentCode     *int64            `json:"payment_code,omitempty"`
	TransactionID   *string           `json:"transaction_id,omitempty"`
	OrderAt         time.Time         `json:"order_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	Items           []OrderItemOutput `json:"items"`
}

// CreateOrder は在庫予約と注文作成を1トランザクションで行う。
// どれか1行でも在庫が足りなければ全体をロールバックする（部分予約は残さない）。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, fmt.Errorf("%w: empty items", ErrValidation)
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return OrderOutput{}, fmt.Errorf("%w: empty shipping address", ErrValidation)
	}
	if in.ShippingFee < 0 {
		return OrderOutput{}, fmt.Errorf("%w: negative shipping fee", ErrValidation)
	}
	for _, it := range in.Items {
		if it.FlowerID <= 0 || it.Quantity < 1 {
			return OrderOutput{}, fmt.Errorf("%w: bad line item", ErrValidation)
		}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		var total int64 = 0
		now := time.Now()

		for _, it := range in.Items {
			//価格スナップショット用に商品を取得
			f, err := r.Flowers().FindByID(ctx, it.FlowerID)
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: id=%d", ErrFlowerNotFound, it.FlowerID)
			}
			if err != nil {
				return err
			}
			if !f.IsActive {
				return fmt.Errorf("%w: id=%d", ErrFlowerNotFound, it.FlowerID)
			}

			//在庫減算（足りないなら false）。失敗でtxごと巻き戻る。
			ok, err := r.Flowers().DecreaseStockIfEnough(ctx, it.FlowerID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: flower=%d qty=%d", ErrInsufficientStock, it.FlowerID, it.Quantity)
			}

			orderItems = append(orderItems, model.OrderItem{
				FlowerID:           it.FlowerID,
				FlowerNameSnapshot: f.Name,
				UnitPriceSnapshot:  f.Price,
				Quantity:           it.Quantity,
				CreatedAt:          now,
			})
			total += f.Price * it.Quantity
		}

		total += in.ShippingFee

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:          userID,
			ShippingAddress: in.ShippingAddress,
			ShippingFee:     in.ShippingFee,
			TotalAmount:     total,
			Status:          model.OrderStatusPending,
			OrderAt:         now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return err
		}

		created := model.Order{
			ID:              orderID,
			UserID:          userID,
			ShippingAddress: in.ShippingAddress,
			ShippingFee:     in.ShippingFee,
			TotalAmount:     total,
			Status:          model.OrderStatusPending,
			OrderAt:         now,
		}
		out = toOrderOutput(created, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, ErrUnauthorized
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return err
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, fmt.Errorf("%w: invalid id", ErrValidation)
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		//他人の注文は「存在しない扱い」にする
		if o.UserID != userID {
			return ErrOrderNotFound
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// UpdateOrderStatus は本人・管理者・販売者だけが呼べる。
// 遷移の可否はmodel側の遷移表で判定する。
func (u *OrderUsecase) UpdateOrderStatus(ctx context.Context, actorID int64, actorRole model.Role, orderID int64, newStatus model.OrderStatus) error {
	if actorID <= 0 {
		return ErrUnauthorized
	}
	if orderID <= 0 {
		return fmt.Errorf("%w: invalid id", ErrValidation)
	}
	if !newStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(newStatus))
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		privileged := actorRole == model.RoleAdmin || actorRole == model.RoleSeller
		if !privileged && o.UserID != actorID {
			return ErrPermissionDenied
		}

		//同じstatusなら何もしない
		if o.Status == newStatus {
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, newStatus)
		}

		//読み取り後に他経路が先へ進んでいたら0行更新になる
		ok, err := r.Orders().UpdateStatusIf(ctx, orderID, o.Status, newStatus)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		return nil
	})
}

func (u *OrderUsecase) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	if f.Page < 1 {
		return []OrderOutput{}, fmt.Errorf("%w: invalid page", ErrValidation)
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, fmt.Errorf("%w: invalid limit", ErrValidation)
	}
	if f.Status != "" && !model.OrderStatus(f.Status).Valid() {
		return []OrderOutput{}, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return err
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			FlowerID: it.FlowerID,
			Name:     it.FlowerNameSnapshot,
			Price:    it.UnitPriceSnapshot,
			Quantity: it.Quantity,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		ShippingFee:     o.ShippingFee,
		TotalAmount:     o.TotalAmount,
		PaymentCode:     o.PaymentCode,
		TransactionID:   o.TransactionID,
		OrderAt:         o.OrderAt,
		PaidAt:          o.PaidAt,
		Items:           outItems,
	}
}
