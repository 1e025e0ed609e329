package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"app/internal/config"
	"app/internal/gateway"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	uc    *usecase.PaymentUsecase
	feURL string
}

func NewPaymentHandler(uc *usecase.PaymentUsecase, feURL string) *PaymentHandler {
	return &PaymentHandler{uc: uc, feURL: feURL}
}

type CreateLinkRequest struct {
	OrderID   int64  `json:"order_id"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type WebhookResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	auth := e.Group("/payments")
	auth.Use(middleware.AuthJWT(cfg))
	auth.POST("/links", h.createLink)
	auth.GET("/links/:orderCode", h.linkInfo)
	auth.POST("/links/:orderCode/cancel", h.cancelLink)

	//ゲートウェイ起点のコールバックは認証なし
	e.GET("/payments/success", h.redirectSuccess)
	e.GET("/payments/cancel", h.redirectCancel)
	e.POST("/payments/webhook", h.webhook)
}

func (h *PaymentHandler) createLink(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//return/cancel未指定ならフロントの決済結果ページへ
	if req.ReturnURL == "" {
		req.ReturnURL = h.feURL + "/payment/success"
	}
	if req.CancelURL == "" {
		req.CancelURL = h.feURL + "/payment/cancel"
	}

	out, err := h.uc.CreatePaymentLink(c.Request().Context(), userID, getRoleFromContext(c), usecase.CreatePaymentLinkInput{
		OrderID:   req.OrderID,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) linkInfo(c echo.Context) error {
	code, err := strconv.ParseInt(c.Param("orderCode"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order code"})
	}

	info, err := h.uc.GetPaymentLinkInfo(c.Request().Context(), code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *PaymentHandler) cancelLink(c echo.Context) error {
	code, err := strconv.ParseInt(c.Param("orderCode"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order code"})
	}

	reason := c.QueryParam("reason")
	out, err := h.uc.CancelPaymentLink(c.Request().Context(), code, reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// ゲートウェイからのブラウザredirect（成功側）。
// query: code, id, orderCode, status, amount
func (h *PaymentHandler) redirectSuccess(c echo.Context) error {
	orderCode, err := strconv.ParseInt(c.QueryParam("orderCode"), 10, 64)
	if err != nil {
		return h.redirectError(c, 0, "invalid order code")
	}

	out, err := h.uc.Reconcile(c.Request().Context(), orderCode, usecase.ReconcileInput{
		Code:   c.QueryParam("code"),
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return h.redirectError(c, orderCode, err.Error())
	}

	q := url.Values{}
	q.Set("orderId", strconv.FormatInt(out.OrderID, 10))
	q.Set("orderCode", strconv.FormatInt(out.OrderCode, 10))
	q.Set("status", out.Status)
	q.Set("success", strconv.FormatBool(out.Success))
	q.Set("message", out.Message)
	q.Set("paymentCode", strconv.FormatInt(out.OrderCode, 10))
	q.Set("transactionId", out.TransactionID)

	return c.Redirect(http.StatusFound, h.feURL+"/payment/result?"+q.Encode())
}

// ゲートウェイからのブラウザredirect（キャンセル側）。
// query: code, id, orderCode, cancel, amount
func (h *PaymentHandler) redirectCancel(c echo.Context) error {
	orderCode, err := strconv.ParseInt(c.QueryParam("orderCode"), 10, 64)
	if err != nil {
		return h.redirectError(c, 0, "invalid order code")
	}

	cancelled, _ := strconv.ParseBool(c.QueryParam("cancel"))
	out, err := h.uc.Reconcile(c.Request().Context(), orderCode, usecase.ReconcileInput{
		Code:   c.QueryParam("code"),
		Status: c.QueryParam("status"),
		Cancel: cancelled || c.QueryParam("status") == "",
	})
	if err != nil {
		return h.redirectError(c, orderCode, err.Error())
	}

	q := url.Values{}
	q.Set("orderId", strconv.FormatInt(out.OrderID, 10))
	q.Set("orderCode", strconv.FormatInt(out.OrderCode, 10))
	q.Set("status", out.Status)
	q.Set("cancelled", "true")
	q.Set("success", "false")
	q.Set("message", out.Message)

	return c.Redirect(http.StatusFound, h.feURL+"/payment/result?"+q.Encode())
}

func (h *PaymentHandler) redirectError(c echo.Context, orderCode int64, msg string) error {
	q := url.Values{}
	q.Set("error", msg)
	q.Set("success", "false")
	if orderCode > 0 {
		q.Set("orderCode", strconv.FormatInt(orderCode, 10))
	}
	return c.Redirect(http.StatusFound, h.feURL+"/payment/error?"+q.Encode())
}

// サーバー間webhook。署名検証→リコンサイル。
// 処理エラーは内部詳細を出さずに400 JSONで返す。
func (h *PaymentHandler) webhook(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, WebhookResponse{Success: false, Message: "invalid body"})
	}

	var body gateway.WebhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return c.JSON(http.StatusBadRequest, WebhookResponse{Success: false, Message: "invalid body"})
	}

	//署名検証は状態を触る前に行う
	if err := h.uc.VerifyWebhook(body); err != nil {
		return c.JSON(http.StatusBadRequest, WebhookResponse{Success: false, Message: "invalid signature"})
	}

	orderCode, ok := webhookOrderCode(body.Data)
	if !ok {
		return c.JSON(http.StatusBadRequest, WebhookResponse{Success: false, Message: "missing order code"})
	}

	status, _ := body.Data["status"].(string)
	if status == "" && body.Code == gateway.ResultCodeSuccess {
		//古いフォーマットはstatusを持たない。成功コードならPAID扱い。
		status = "PAID"
	}

	out, err := h.uc.Reconcile(c.Request().Context(), orderCode, usecase.ReconcileInput{
		Code:   body.Code,
		Status: status,
		Raw:    raw,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, WebhookResponse{Success: false, Message: webhookErrorMessage(err)})
	}

	return c.JSON(http.StatusOK, WebhookResponse{
		Success: out.Success,
		Message: out.Message,
		Data: map[string]string{
			"orderCode": strconv.FormatInt(out.OrderCode, 10),
			"status":    out.Status,
		},
	})
}

func webhookOrderCode(data map[string]interface{}) (int64, bool) {
	switch v := data["orderCode"].(type) {
	case float64:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// 外部に返すメッセージは種別だけに丸める
func webhookErrorMessage(err error) string {
	for _, known := range []error{
		usecase.ErrOrderNotFound,
		usecase.ErrTransactionNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "processing error"
}
