package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// READ COMMITTED相当の読み取りを再現するラッパー。
// Transactionの読み取りだけ固定の古い値を返し、書き込みは共有storeに当たる。
type staleReadStore struct {
	*memStore
	stale model.Transaction
}

func (s *staleReadStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return s.memStore.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(staleRepos{TxRepos: r, stale: s.stale})
	})
}

type staleRepos struct {
	repo.TxRepos
	stale model.Transaction
}

func (r staleRepos) Transactions() repo.TransactionRepository {
	return staleTxnRepo{TransactionRepository: r.TxRepos.Transactions(), stale: r.stale}
}

type staleTxnRepo struct {
	repo.TransactionRepository
	stale model.Transaction
}

func (r staleTxnRepo) FindByID(ctx context.Context, transactionID string) (model.Transaction, error) {
	return r.stale, nil
}

func pendingOrderWithLink(store *memStore, orderID int64, userID int64, code int64, txID string) {
	store.seedOrder(model.Order{
		ID:            orderID,
		UserID:        userID,
		TotalAmount:   2100,
		Status:        model.OrderStatusPending,
		PaymentCode:   &code,
		TransactionID: &txID,
	})
	store.seedTxn(model.Transaction{
		ID:         txID,
		FromUserID: userID,
		Amount:     2100,
		Status:     model.TransactionStatusPending,
	})
}

func TestPaymentUsecase_CreatePaymentLink_Success(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedOrder(model.Order{ID: 1, UserID: 7, TotalAmount: 2100, Status: model.OrderStatusPending})
	store.seedItems(1, []model.OrderItem{
		{OrderID: 1, FlowerID: 1, FlowerNameSnapshot: "Rose", UnitPriceSnapshot: 500, Quantity: 2},
	})

	gw := new(GatewayMock)
	gw.On("CreatePaymentLink", mock.Anything, mock.MatchedBy(func(req gateway.CreateLinkRequest) bool {
		return req.Amount == 2100 && req.OrderCode > 0 && len(req.Items) == 1
	})).Return(&gateway.PaymentLinkData{
		PaymentLinkID: "pl_123",
		CheckoutURL:   "https://pay.example/pl_123",
		QRCode:        "qr-data",
	}, nil)

	uc := usecase.NewPaymentUsecase(store, gw)

	out, err := uc.CreatePaymentLink(ctx, 7, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/pl_123", out.CheckoutURL)
	assert.Equal(t, int64(2100), out.Amount)
	assert.NotEmpty(t, out.TransactionID)

	//コードは「ミリ秒×1e6＋乱数6桁」の形
	nowMilli := time.Now().UnixMilli()
	codeMilli := out.PaymentCode / 1_000_000
	assert.InDelta(t, nowMilli, codeMilli, 5_000)
	assert.GreaterOrEqual(t, out.PaymentCode%1_000_000, int64(0))

	//注文にコードとtransactionが結び付き、TransactionはPENDINGで作られる
	o := store.getOrder(1)
	assert.NotNil(t, o.PaymentCode)
	assert.Equal(t, out.PaymentCode, *o.PaymentCode)
	assert.Equal(t, model.TransactionStatusPending, store.getTxn(out.TransactionID).Status)

	gw.AssertExpectations(t)
}

func TestPaymentUsecase_CreatePaymentLink_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	_, err := uc.CreatePaymentLink(ctx, 7, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.ErrorIs(t, err, usecase.ErrDuplicatePaymentLink)
}

func TestPaymentUsecase_CreatePaymentLink_NotPending(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedOrder(model.Order{ID: 1, UserID: 7, TotalAmount: 2100, Status: model.OrderStatusPaid})

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	_, err := uc.CreatePaymentLink(ctx, 7, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.ErrorIs(t, err, usecase.ErrInvalidStatus)
}

func TestPaymentUsecase_CreatePaymentLink_OtherUsersOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedOrder(model.Order{ID: 1, UserID: 7, TotalAmount: 2100, Status: model.OrderStatusPending})

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	_, err := uc.CreatePaymentLink(ctx, 8, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.ErrorIs(t, err, usecase.ErrPermissionDenied)
}

// ゲートウェイ呼び出しが失敗したらTransactionをFAILEDへ落としてコードを外す。
// 再試行で新しいリンクを作れる状態に戻る。
func TestPaymentUsecase_CreatePaymentLink_GatewayFailureCompensates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedOrder(model.Order{ID: 1, UserID: 7, TotalAmount: 2100, Status: model.OrderStatusPending})
	store.seedItems(1, []model.OrderItem{})

	gw := new(GatewayMock)
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).
		Return(nil, errors.New("upstream 500")).Once()

	uc := usecase.NewPaymentUsecase(store, gw)

	_, err := uc.CreatePaymentLink(ctx, 7, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.ErrorIs(t, err, usecase.ErrGateway)

	o := store.getOrder(1)
	assert.Nil(t, o.PaymentCode)
	assert.Equal(t, model.OrderStatusPending, o.Status)

	//2回目は成功する
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).
		Return(&gateway.PaymentLinkData{PaymentLinkID: "pl_2", CheckoutURL: "u", QRCode: "q"}, nil).Once()

	out, err := uc.CreatePaymentLink(ctx, 7, model.RoleCustomer, usecase.CreatePaymentLinkInput{OrderID: 1})
	assert.NoError(t, err)
	assert.NotZero(t, out.PaymentCode)
}

func TestPaymentUsecase_Reconcile_Paid(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "tx-1", out.TransactionID)

	//TransactionとOrderが同時に確定する
	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	o := store.getOrder(1)
	assert.Equal(t, model.OrderStatusPaid, o.Status)
	assert.NotNil(t, o.PaidAt)
}

// redirectとwebhookの二重到着。2回目は何も書かずに成功として返る。
func TestPaymentUsecase_Reconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	first, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)
	paidAt := store.getOrder(1).PaidAt

	second, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, "already completed", second.Message)
	assert.Equal(t, first.OrderID, second.OrderID)

	//paid_atが上書きされていない
	assert.Equal(t, paidAt, store.getOrder(1).PaidAt)
}

// キャンセルは「支払い試行」のキャンセル。注文はPENDINGのまま再試行できる。
func TestPaymentUsecase_Reconcile_CancelLeavesOrderPending(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Cancel: true})
	assert.NoError(t, err)
	assert.False(t, out.Success)

	assert.Equal(t, model.TransactionStatusCancelled, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPending, store.getOrder(1).Status)
}

// 先に支払いが確定していたら、遅れて届いたキャンセルは無視される
func TestPaymentUsecase_Reconcile_CancelAfterCompletedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	_, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Cancel: true})
	assert.NoError(t, err)
	assert.True(t, out.Success)

	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPaid, store.getOrder(1).Status)
}

func TestPaymentUsecase_Reconcile_FailedKeepsOrderPending(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "99", Status: "ERROR"})
	assert.NoError(t, err)
	assert.False(t, out.Success)

	assert.Equal(t, model.TransactionStatusFailed, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPending, store.getOrder(1).Status)
}

// webhookのPAIDコミット直後に、古いPENDINGを読んだredirect-cancelが走っても
// COMPLETEDを巻き戻せない（書き込みは読んだstatusを述語にするため0行になる）。
func TestPaymentUsecase_Reconcile_StaleReadCannotRegressCompleted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	//支払い確定を先にコミットしておく
	_, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)

	//古いPENDINGビューを掴んだままのキャンセル
	stale := store.getTxn("tx-1")
	stale.Status = model.TransactionStatusPending
	staleUC := usecase.NewPaymentUsecase(&staleReadStore{memStore: store, stale: stale}, new(GatewayMock))

	_, err = staleUC.Reconcile(ctx, 555001, usecase.ReconcileInput{Cancel: true})
	assert.NoError(t, err)

	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPaid, store.getOrder(1).Status)

	//古いビューからのPAID再適用も書けず、競合として返る
	_, err = staleUC.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.ErrorIs(t, err, usecase.ErrConflict)
	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
}

// FAILED後に本物の入金webhookが届いたら上書きして確定する
func TestPaymentUsecase_Reconcile_LateSettlementOverridesFailed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	_, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "99", Status: "ERROR"})
	assert.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, store.getTxn("tx-1").Status)

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPaid, store.getOrder(1).Status)
}

// リーパーがキャンセル済みの注文に遅い入金が届いても、注文は復活しない。
// Transaction台帳だけが入金の事実を記録する。
func TestPaymentUsecase_Reconcile_PaidAfterReaperCancelDoesNotReviveOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	code := int64(555001)
	txID := "tx-1"
	store.seedOrder(model.Order{
		ID:            1,
		UserID:        7,
		TotalAmount:   2100,
		Status:        model.OrderStatusCancelled,
		PaymentCode:   &code,
		TransactionID: &txID,
	})
	store.seedTxn(model.Transaction{ID: txID, FromUserID: 7, Amount: 2100, Status: model.TransactionStatusCancelled})

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	out, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)
	assert.True(t, out.Success)

	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	o := store.getOrder(1)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
	assert.Nil(t, o.PaidAt)
}

func TestPaymentUsecase_Reconcile_UnknownCode(t *testing.T) {
	uc := usecase.NewPaymentUsecase(newMemStore(), new(GatewayMock))

	_, err := uc.Reconcile(context.Background(), 999999, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.ErrorIs(t, err, usecase.ErrOrderNotFound)
}

func TestPaymentUsecase_Reconcile_SavesRawPayload(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	uc := usecase.NewPaymentUsecase(store, new(GatewayMock))

	raw := []byte(`{"orderCode":555001,"code":"00"}`)
	_, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID", Raw: raw})
	assert.NoError(t, err)
	assert.Equal(t, raw, []byte(store.getTxn("tx-1").GatewayData))
}

func TestPaymentUsecase_VerifyWebhook(t *testing.T) {
	gw := new(GatewayMock)
	body := gateway.WebhookBody{Code: "00", Signature: "sig"}
	gw.On("VerifySignature", body).Return(false)

	uc := usecase.NewPaymentUsecase(newMemStore(), gw)
	assert.ErrorIs(t, uc.VerifyWebhook(body), usecase.ErrInvalidSignature)
}

func TestPaymentUsecase_CancelPaymentLink_MirrorsTerminalState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	gw := new(GatewayMock)
	gw.On("CancelPaymentLink", mock.Anything, int64(555001), "changed my mind").
		Return(&gateway.PaymentLinkInfo{OrderCode: 555001, Status: "CANCELLED"}, nil)

	uc := usecase.NewPaymentUsecase(store, gw)

	out, err := uc.CancelPaymentLink(ctx, 555001, "changed my mind")
	assert.NoError(t, err)
	assert.False(t, out.Success)

	//明示キャンセルはTransactionもOrderも止める
	assert.Equal(t, model.TransactionStatusCancelled, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusCancelled, store.getOrder(1).Status)
}

// 支払い済み注文への遅いキャンセルはローカル状態を壊さない
func TestPaymentUsecase_CancelPaymentLink_PaidOrderUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pendingOrderWithLink(store, 1, 7, 555001, "tx-1")

	gw := new(GatewayMock)
	gw.On("CancelPaymentLink", mock.Anything, int64(555001), "").
		Return(&gateway.PaymentLinkInfo{OrderCode: 555001, Status: "CANCELLED"}, nil)

	uc := usecase.NewPaymentUsecase(store, gw)

	_, err := uc.Reconcile(ctx, 555001, usecase.ReconcileInput{Code: "00", Status: "PAID"})
	assert.NoError(t, err)

	_, err = uc.CancelPaymentLink(ctx, 555001, "")
	assert.NoError(t, err)

	assert.Equal(t, model.TransactionStatusCompleted, store.getTxn("tx-1").Status)
	assert.Equal(t, model.OrderStatusPaid, store.getOrder(1).Status)
}
