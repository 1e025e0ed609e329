package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// 署名対象はキー昇順の "k=v&k=v&..." 形式。
// 数値はJSONデコードでfloat64になるので整数表記へ戻してから並べる。
func canonicalize(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+stringify(data[k]))
	}
	return strings.Join(pairs, "&")
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func signData(data map[string]interface{}, checksumKey string) string {
	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(canonicalize(data)))
	return hex.EncodeToString(mac.Sum(nil))
}

// リンク作成リクエスト用の署名。対象フィールドは固定5つ。
func signCreateLink(req CreateLinkRequest, checksumKey string) string {
	payload := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(data map[string]interface{}, signature string, checksumKey string) bool {
	if signature == "" || len(data) == 0 {
		return false
	}
	want := signData(data, checksumKey)
	return hmac.Equal([]byte(want), []byte(signature))
}
