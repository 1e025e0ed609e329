package model

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// COMPLETEDは単調（戻らない）。
// FAILED/CANCELLED→COMPLETEDは許す：ゲートウェイ側で実際に入金が確定した
// 後からローカルの失敗・キャンセルを上書きするケース。
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusFailed:    {TransactionStatusCompleted, TransactionStatusCancelled},
	TransactionStatusCancelled: {TransactionStatusCompleted},
	TransactionStatusCompleted: {},
}

func (s TransactionStatus) Valid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, t := range transactionTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// 1回の支払い試行につき1レコード。Orderからはtransaction_idで参照される。
type Transaction struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FromUserID      int64             `gorm:"not null;index" json:"from_user_id"`
	ToAccount       string            `gorm:"type:varchar(64);not null" json:"to_account"`
	Amount          int64             `gorm:"not null" json:"amount"`
	Status          TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TransactionDate time.Time         `gorm:"not null" json:"transaction_date"`
	GatewayData     datatypes.JSON    `gorm:"type:jsonb" json:"gateway_data,omitempty"`
	UpdatedAt       time.Time         `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
