package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// 許可する遷移を一箇所にまとめる（文字列比較をメソッドに散らばらせない）
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// 現在のstatusからnextへ遷移できるか
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// DELIVERED / CANCELLED は終端
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

type Order struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64       `gorm:"not null;index" json:"user_id"`
	ShippingAddress string      `gorm:"type:varchar(500);not null" json:"shipping_address"`
	ShippingFee     int64       `gorm:"not null" json:"shipping_fee"`
	TotalAmount     int64       `gorm:"not null" json:"total_amount"`
	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TransactionID   *string     `gorm:"type:varchar(36)" json:"transaction_id,omitempty"`
	PaymentCode     *int64      `gorm:"uniqueIndex" json:"payment_code,omitempty"`
	OrderAt         time.Time   `gorm:"not null;index" json:"order_at"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`
	UpdatedAt       time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
