package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PayOSClient は決済ゲートウェイのRESTクライアント。
// リトライはしない：失敗は呼び出し側が補償書き込みで処理する。
type PayOSClient struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	http        *http.Client
}

func NewPayOSClient(baseURL, clientID, apiKey, checksumKey string) *PayOSClient {
	return &PayOSClient{
		baseURL:     baseURL,
		clientID:    clientID,
		apiKey:      apiKey,
		checksumKey: checksumKey,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

type createLinkPayload struct {
	CreateLinkRequest
	Signature string `json:"signature"`
}

type apiEnvelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

func (c *PayOSClient) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*PaymentLinkData, error) {
	payload := createLinkPayload{
		CreateLinkRequest: req,
		Signature:         signCreateLink(req, c.checksumKey),
	}

	var data PaymentLinkData
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *PayOSClient) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*PaymentLinkInfo, error) {
	var info PaymentLinkInfo
	path := fmt.Sprintf("/v2/payment-requests/%d", orderCode)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *PayOSClient) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*PaymentLinkInfo, error) {
	body := map[string]string{"cancellationReason": reason}

	var info PaymentLinkInfo
	path := fmt.Sprintf("/v2/payment-requests/%d/cancel", orderCode)
	if err := c.do(ctx, http.MethodPost, path, body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *PayOSClient) VerifySignature(body WebhookBody) bool {
	return verifySignature(body.Data, body.Signature, c.checksumKey)
}

func (c *PayOSClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, string(raw))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("gateway response decode: %w", err)
	}
	if env.Code != ResultCodeSuccess {
		return fmt.Errorf("gateway error %s: %s", env.Code, env.Desc)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("gateway data decode: %w", err)
		}
	}
	return nil
}
