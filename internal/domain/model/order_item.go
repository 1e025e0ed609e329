package model

import "time"

// 価格は注文時点のスナップショット。Flower側の値上げ/値下げの影響を受けない。
type OrderItem struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID            int64     `gorm:"not null;index" json:"order_id"`
	FlowerID           int64     `gorm:"not null;index" json:"flower_id"`
	FlowerNameSnapshot string    `gorm:"type:varchar(255);not null" json:"flower_name_snapshot"`
	UnitPriceSnapshot  int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity           int64     `gorm:"not null" json:"quantity"`
	CreatedAt          time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
