package usecase

import "errors"

// ドメインエラーはここに集約する。
// HTTPステータスへの変換はhandler側の対応表が担当（メッセージ文字列での分岐は禁止）。
var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrFlowerNotFound       = errors.New("flower not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrDuplicatePaymentLink = errors.New("order already has a payment link")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("conflict")
	ErrGateway              = errors.New("payment gateway error")
)
