package gateway

import "context"

// ゲートウェイの成功センチネル
const ResultCodeSuccess = "00"

type CreateLinkRequest struct {
	OrderCode   int64      `json:"orderCode"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	Items       []LinkItem `json:"items"`
	ReturnURL   string     `json:"returnUrl"`
	CancelURL   string     `json:"cancelUrl"`
}

type LinkItem struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

type PaymentLinkData struct {
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

type PaymentLinkInfo struct {
	PaymentLinkID string `json:"paymentLinkId"`
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	AmountPaid    int64  `json:"amountPaid"`
	Status        string `json:"status"`
}

// webhookのbody。dataの中身が署名対象。
type WebhookBody struct {
	Code      string                 `json:"code"`
	Desc      string                 `json:"desc"`
	Data      map[string]interface{} `json:"data"`
	Signature string                 `json:"signature"`
}

// 外部決済ゲートウェイとの境界。プロトコル詳細はこの下に閉じ込める。
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*PaymentLinkData, error)
	GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*PaymentLinkInfo, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*PaymentLinkInfo, error)
	VerifySignature(body WebhookBody) bool
}
