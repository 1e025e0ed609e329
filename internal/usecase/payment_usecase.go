package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"

	"github.com/google/uuid"
)

// 決済の着地先（システム側の精算口座）
const settlementAccount = "FLORA_SETTLEMENT"

type PaymentUsecase struct {
	tx repo.TransactionManager
	gw gateway.PaymentGateway
}

func NewPaymentUsecase(tx repo.TransactionManager, gw gateway.PaymentGateway) *PaymentUsecase {
	return &PaymentUsecase{tx: tx, gw: gw}
}

type CreatePaymentLinkInput struct {
	OrderID   int64
	ReturnURL string
	CancelURL string
}

type CreatePaymentLinkOutput struct {
	CheckoutURL   string `json:"checkout_url"`
	PaymentCode   int64  `json:"payment_code"`
	TransactionID string `json:"transaction_id"`
	OrderID       int64  `json:"order_id"`
	Amount        int64  `json:"amount"`
	QRCode        string `json:"qr_code"`
	PaymentLinkID string `json:"payment_link_id"`
}

// 支払い結果のぶれない分類
type PaymentOutcome string

const (
	OutcomePaid      PaymentOutcome = "PAID"
	OutcomeCancelled PaymentOutcome = "CANCELLED"
	OutcomeFailed    PaymentOutcome = "FAILED"
)

type ReconcileInput struct {
	Code   string // ゲートウェイのresultコード（"00"=成功）
	Status string // ゲートウェイのstatus文字列
	Cancel bool   // キャンセルフラグ（redirect cancel経由）
	Raw    []byte // 生ペイロード（webhook監査用、省略可）
}

type ReconcileOutput struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	OrderID       int64  `json:"order_id"`
	OrderCode     int64  `json:"order_code"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
}

// CreatePaymentLink は注文に一意な決済コードを割り当て、PENDINGのTransactionを作り、
// ゲートウェイへリンク作成を依頼する。ゲートウェイ失敗時はTransactionをFAILEDにして
// コードを外す（再試行で新しいコードを割り当てられるように）。在庫予約は巻き戻さない。
func (u *PaymentUsecase) CreatePaymentLink(ctx context.Context, actorID int64, actorRole model.Role, in CreatePaymentLinkInput) (CreatePaymentLinkOutput, error) {
	if actorID <= 0 {
		return CreatePaymentLinkOutput{}, ErrUnauthorized
	}
	if in.OrderID <= 0 {
		return CreatePaymentLinkOutput{}, fmt.Errorf("%w: invalid order id", ErrValidation)
	}

	var (
		order model.Order
		items []model.OrderItem
		code  int64
		txID  string
	)

	// コード割り当てとTransaction作成までを1コミットで行う。
	// ゲートウェイ呼び出しはtxの外（ネットワーク待ちでDBロックを抱えない）。
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, in.OrderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if actorRole != model.RoleAdmin && o.UserID != actorID {
			return ErrPermissionDenied
		}
		if o.Status != model.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidStatus, o.Status)
		}
		if o.PaymentCode != nil {
			return ErrDuplicatePaymentLink
		}

		code, err = generatePaymentCode(time.Now())
		if err != nil {
			return err
		}
		txID = uuid.NewString()

		if err := r.Transactions().Create(ctx, model.Transaction{
			ID:              txID,
			FromUserID:      o.UserID,
			ToAccount:       settlementAccount,
			Amount:          o.TotalAmount,
			Status:          model.TransactionStatusPending,
			TransactionDate: time.Now(),
		}); err != nil {
			return err
		}

		//payment_codeは条件付き更新。並走したリクエストは片方しか勝てない。
		ok, err := r.Orders().AssignPaymentCode(ctx, o.ID, code, txID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDuplicatePaymentLink
		}

		items, err = r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return CreatePaymentLinkOutput{}, err
	}

	linkItems := make([]gateway.LinkItem, 0, len(items))
	for _, it := range items {
		linkItems = append(linkItems, gateway.LinkItem{
			Name:     it.FlowerNameSnapshot,
			Quantity: it.Quantity,
			Price:    it.UnitPriceSnapshot,
		})
	}

	link, gwErr := u.gw.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
		OrderCode:   code,
		Amount:      order.TotalAmount,
		Description: fmt.Sprintf("Don hang #%d", order.ID),
		Items:       linkItems,
		ReturnURL:   in.ReturnURL,
		CancelURL:   in.CancelURL,
	})
	if gwErr != nil {
		//補償書き込み：Transactionを落としてコードを外す。失敗しても元のエラーを返す。
		_ = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			if err := r.Transactions().UpdateStatus(ctx, txID, model.TransactionStatusFailed); err != nil {
				return err
			}
			return r.Orders().ClearPaymentCode(ctx, order.ID)
		})
		return CreatePaymentLinkOutput{}, fmt.Errorf("%w: %v", ErrGateway, gwErr)
	}

	return CreatePaymentLinkOutput{
		CheckoutURL:   link.CheckoutURL,
		PaymentCode:   code,
		TransactionID: txID,
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		QRCode:        link.QRCode,
		PaymentLinkID: link.PaymentLinkID,
	}, nil
}

// Reconcile はredirectとwebhookの両方から呼ばれる冪等なマージ処理。
// 到着順・回数に依存しない。COMPLETED済みなら何も書かずに返る。
// 状態を書くのはadvanceTransaction経由の条件付き更新だけ。
func (u *PaymentUsecase) Reconcile(ctx context.Context, orderCode int64, in ReconcileInput) (ReconcileOutput, error) {
	var out ReconcileOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByPaymentCode(ctx, orderCode)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		outcome := classifyOutcome(in)

		if order.TransactionID == nil {
			//createPaymentLinkが先行していれば起きないはずの防御
			return ErrTransactionNotFound
		}
		txn, err := r.Transactions().FindByID(ctx, *order.TransactionID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}

		//冪等ガード：再配送されたwebhookや成功ページのリロードはここで止まる
		if txn.Status == model.TransactionStatusCompleted {
			out = ReconcileOutput{
				Success:       true,
				Message:       "already completed",
				OrderID:       order.ID,
				OrderCode:     orderCode,
				TransactionID: txn.ID,
				Status:        string(model.TransactionStatusCompleted),
			}
			return nil
		}

		if len(in.Raw) > 0 {
			if err := r.Transactions().SaveGatewayData(ctx, txn.ID, in.Raw); err != nil {
				return err
			}
		}

		switch outcome {
		case OutcomePaid:
			//Transaction確定とOrder側反映は同一コミット。
			//遷移表で許可されたfromからだけ、条件付き更新で進める。
			ok, err := advanceTransaction(ctx, r, txn, model.TransactionStatusCompleted)
			if err != nil {
				return err
			}
			if !ok {
				//読み取り後に別経路が先へ進めた。再配送は冪等ガードで止まる。
				return ErrConflict
			}
			//注文はPENDINGのときだけPAIDへ。リーパーが先にキャンセルした注文は復活させない。
			if _, err := r.Orders().MarkPaid(ctx, order.ID, txn.ID, time.Now()); err != nil {
				return err
			}
			out = ReconcileOutput{
				Success:       true,
				Message:       "payment completed",
				OrderID:       order.ID,
				OrderCode:     orderCode,
				TransactionID: txn.ID,
				Status:        string(OutcomePaid),
			}

		case OutcomeCancelled:
			//支払い試行のキャンセルであって注文のキャンセルではない。Orderは触らない。
			//条件付き更新なので、並走してCOMPLETEDが先にコミットしていれば0行で素通りする。
			if _, err := advanceTransaction(ctx, r, txn, model.TransactionStatusCancelled); err != nil {
				return err
			}
			out = ReconcileOutput{
				Success:       false,
				Message:       "payment cancelled",
				OrderID:       order.ID,
				OrderCode:     orderCode,
				TransactionID: txn.ID,
				Status:        string(OutcomeCancelled),
			}

		default:
			//FAILED。落とせるのはPENDINGからだけ（注文は再試行余地を残してPENDINGのまま）。
			if _, err := advanceTransaction(ctx, r, txn, model.TransactionStatusFailed); err != nil {
				return err
			}
			out = ReconcileOutput{
				Success:       false,
				Message:       "payment failed",
				OrderID:       order.ID,
				OrderCode:     orderCode,
				TransactionID: txn.ID,
				Status:        string(OutcomeFailed),
			}
		}
		return nil
	})

	if err != nil {
		return ReconcileOutput{}, err
	}
	return out, nil
}

// VerifyWebhook は署名検証だけを行う。失敗時は状態を一切変えない。
func (u *PaymentUsecase) VerifyWebhook(body gateway.WebhookBody) error {
	if !u.gw.VerifySignature(body) {
		return ErrInvalidSignature
	}
	return nil
}

// GetPaymentLinkInfo はゲートウェイへのパススルー照会。
func (u *PaymentUsecase) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*gateway.PaymentLinkInfo, error) {
	info, err := u.gw.GetPaymentLinkInfo(ctx, orderCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return info, nil
}

// CancelPaymentLink はゲートウェイ側のリンクを取り消し、
// ローカルのTransactionとOrderへ終端状態をミラーする。
func (u *PaymentUsecase) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (ReconcileOutput, error) {
	if _, err := u.gw.CancelPaymentLink(ctx, orderCode, reason); err != nil {
		return ReconcileOutput{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	var out ReconcileOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByPaymentCode(ctx, orderCode)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if order.TransactionID != nil {
			if _, err := r.Transactions().UpdateStatusIf(ctx, *order.TransactionID,
				model.TransactionStatusPending, model.TransactionStatusCancelled); err != nil {
				return err
			}
		}

		//PENDING以外（支払い済みなど）は触らない
		if _, err := r.Orders().UpdateStatusIf(ctx, order.ID,
			model.OrderStatusPending, model.OrderStatusCancelled); err != nil {
			return err
		}

		out = ReconcileOutput{
			Success:   false,
			Message:   "payment link cancelled",
			OrderID:   order.ID,
			OrderCode: orderCode,
			Status:    string(OutcomeCancelled),
		}
		return nil
	})

	if err != nil {
		return ReconcileOutput{}, err
	}
	return out, nil
}

// 遷移表が許すfromからだけtoへ書く。書き込みは読み取ったstatusを述語にした
// 条件付き更新なので、読み取り後に別経路がコミットしていても上書きしない。
func advanceTransaction(ctx context.Context, r repo.TxRepos, txn model.Transaction, to model.TransactionStatus) (bool, error) {
	if !txn.Status.CanTransitionTo(to) {
		return false, nil
	}
	return r.Transactions().UpdateStatusIf(ctx, txn.ID, txn.Status, to)
}

// PAID：成功コードかつPAID status。CANCELLED：cancelフラグかCANCELLED status。他はFAILED。
func classifyOutcome(in ReconcileInput) PaymentOutcome {
	if in.Code == gateway.ResultCodeSuccess && in.Status == "PAID" {
		return OutcomePaid
	}
	if in.Cancel || in.Status == "CANCELLED" {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// 時刻ミリ秒×1e6＋乱数6桁。ゲートウェイと共有する数値の相関キー。
func generatePaymentCode(now time.Time) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return 0, err
	}
	return now.UnixMilli()*1_000_000 + n.Int64(), nil
}
