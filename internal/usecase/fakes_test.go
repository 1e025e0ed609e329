package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// In-memory store（条件付き更新とロールバックを本物と同じ意味で再現する）
// =====================

type memStore struct {
	mu sync.Mutex

	flowers map[int64]model.Flower
	orders  map[int64]model.Order
	items   map[int64][]model.OrderItem
	txns    map[string]model.Transaction

	nextOrderID int64
}

func newMemStore() *memStore {
	return &memStore{
		flowers:     map[int64]model.Flower{},
		orders:      map[int64]model.Order{},
		items:       map[int64][]model.OrderItem{},
		txns:        map[string]model.Transaction{},
		nextOrderID: 1,
	}
}

func (s *memStore) seedFlower(f model.Flower) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowers[f.ID] = f
}

func (s *memStore) seedOrder(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	if o.ID >= s.nextOrderID {
		s.nextOrderID = o.ID + 1
	}
}

func (s *memStore) seedItems(orderID int64, items []model.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[orderID] = items
}

func (s *memStore) seedTxn(t model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[t.ID] = t
}

func (s *memStore) getOrder(id int64) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) getFlower(id int64) model.Flower {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flowers[id]
}

func (s *memStore) getTxn(id string) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[id]
}

func (s *memStore) snapshot() (map[int64]model.Flower, map[int64]model.Order, map[int64][]model.OrderItem, map[string]model.Transaction, int64) {
	fl := make(map[int64]model.Flower, len(s.flowers))
	for k, v := range s.flowers {
		fl[k] = v
	}
	or := make(map[int64]model.Order, len(s.orders))
	for k, v := range s.orders {
		or[k] = v
	}
	it := make(map[int64][]model.OrderItem, len(s.items))
	for k, v := range s.items {
		cp := make([]model.OrderItem, len(v))
		copy(cp, v)
		it[k] = cp
	}
	tx := make(map[string]model.Transaction, len(s.txns))
	for k, v := range s.txns {
		tx[k] = v
	}
	return fl, or, it, tx, s.nextOrderID
}

// WithinTx はロックで直列化し、fnがエラーなら書き込み前の状態へ戻す。
func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl, or, it, tx, next := s.snapshot()

	if err := fn(memRepos{s: s}); err != nil {
		s.flowers, s.orders, s.items, s.txns, s.nextOrderID = fl, or, it, tx, next
		return err
	}
	return nil
}

type memRepos struct{ s *memStore }

func (r memRepos) Orders() repo.OrderRepository             { return memOrderRepo{s: r.s} }
func (r memRepos) OrderItems() repo.OrderItemRepository     { return memOrderItemRepo{s: r.s} }
func (r memRepos) Flowers() repo.FlowerRepository           { return memFlowerRepo{s: r.s} }
func (r memRepos) Transactions() repo.TransactionRepository { return memTxnRepo{s: r.s} }

// --- Flowers ---

type memFlowerRepo struct{ s *memStore }

func (r memFlowerRepo) FindByID(ctx context.Context, flowerID int64) (model.Flower, error) {
	f, ok := r.s.flowers[flowerID]
	if !ok {
		return model.Flower{}, repo.ErrNotFound
	}
	return f, nil
}

func (r memFlowerRepo) DecreaseStockIfEnough(ctx context.Context, flowerID int64, qty int64) (bool, error) {
	f, ok := r.s.flowers[flowerID]
	if !ok || f.Stock < qty {
		return false, nil
	}
	f.Stock -= qty
	r.s.flowers[flowerID] = f
	return true, nil
}

func (r memFlowerRepo) IncreaseStock(ctx context.Context, flowerID int64, qty int64) error {
	f, ok := r.s.flowers[flowerID]
	if !ok {
		return repo.ErrNotFound
	}
	f.Stock += qty
	r.s.flowers[flowerID] = f
	return nil
}

func (r memFlowerRepo) List(ctx context.Context, page, limit int, activeOnly bool) ([]model.Flower, int64, error) {
	panic("not used")
}
func (r memFlowerRepo) Create(ctx context.Context, f model.Flower) (int64, error) { panic("not used") }
func (r memFlowerRepo) Update(ctx context.Context, f model.Flower) error          { panic("not used") }
func (r memFlowerRepo) Delete(ctx context.Context, flowerID int64) error          { panic("not used") }
func (r memFlowerRepo) SetStock(ctx context.Context, flowerID, newStock int64) error {
	panic("not used")
}

// --- Orders ---

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrderRepo) FindByPaymentCode(ctx context.Context, code int64) (model.Order, error) {
	for _, o := range r.s.orders {
		if o.PaymentCode != nil && *o.PaymentCode == code {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r memOrderRepo) ListByUserID(ctx context.Context, userID int64, page, limit int) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := int64(len(out))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r memOrderRepo) Create(ctx context.Context, order model.Order) (int64, error) {
	order.ID = r.s.nextOrderID
	r.s.nextOrderID++
	r.s.orders[order.ID] = order
	return order.ID, nil
}

func (r memOrderRepo) UpdateStatusIf(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	r.s.orders[orderID] = o
	return true, nil
}

func (r memOrderRepo) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	r.s.orders[orderID] = o
	return nil
}

func (r memOrderRepo) MarkPaid(ctx context.Context, orderID int64, transactionID string, paidAt time.Time) (bool, error) {
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	o.PaidAt = &paidAt
	o.TransactionID = &transactionID
	r.s.orders[orderID] = o
	return true, nil
}

func (r memOrderRepo) AssignPaymentCode(ctx context.Context, orderID int64, code int64, transactionID string) (bool, error) {
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentCode != nil {
		return false, nil
	}
	o.PaymentCode = &code
	o.TransactionID = &transactionID
	r.s.orders[orderID] = o
	return true, nil
}

func (r memOrderRepo) ClearPaymentCode(ctx context.Context, orderID int64) error {
	o, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.PaymentCode = nil
	r.s.orders[orderID] = o
	return nil
}

func (r memOrderRepo) ListExpiredPending(ctx context.Context, olderThan time.Time) ([]model.Order, error) {
	panic("not used")
}

func (r memOrderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	panic("not used")
}

// --- OrderItems ---

type memOrderItemRepo struct{ s *memStore }

func (r memOrderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	cp := make([]model.OrderItem, len(items))
	copy(cp, items)
	for i := range cp {
		cp[i].OrderID = orderID
	}
	r.s.items[orderID] = cp
	return nil
}

func (r memOrderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return r.s.items[orderID], nil
}

// --- Transactions ---

type memTxnRepo struct{ s *memStore }

func (r memTxnRepo) FindByID(ctx context.Context, transactionID string) (model.Transaction, error) {
	t, ok := r.s.txns[transactionID]
	if !ok {
		return model.Transaction{}, repo.ErrNotFound
	}
	return t, nil
}

func (r memTxnRepo) ListByUserID(ctx context.Context, userID int64, page, limit int) ([]model.Transaction, int64, error) {
	panic("not used")
}

func (r memTxnRepo) Create(ctx context.Context, tx model.Transaction) error {
	r.s.txns[tx.ID] = tx
	return nil
}

func (r memTxnRepo) UpdateStatus(ctx context.Context, transactionID string, status model.TransactionStatus) error {
	t, ok := r.s.txns[transactionID]
	if !ok {
		return repo.ErrNotFound
	}
	t.Status = status
	r.s.txns[transactionID] = t
	return nil
}

func (r memTxnRepo) UpdateStatusIf(ctx context.Context, transactionID string, from, to model.TransactionStatus) (bool, error) {
	t, ok := r.s.txns[transactionID]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	r.s.txns[transactionID] = t
	return true, nil
}

func (r memTxnRepo) SaveGatewayData(ctx context.Context, transactionID string, payload []byte) error {
	t, ok := r.s.txns[transactionID]
	if !ok {
		return repo.ErrNotFound
	}
	t.GatewayData = payload
	r.s.txns[transactionID] = t
	return nil
}

// =====================
// Gateway mock
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreatePaymentLink(ctx context.Context, req gateway.CreateLinkRequest) (*gateway.PaymentLinkData, error) {
	args := m.Called(ctx, req)
	data, _ := args.Get(0).(*gateway.PaymentLinkData)
	return data, args.Error(1)
}

func (m *GatewayMock) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*gateway.PaymentLinkInfo, error) {
	args := m.Called(ctx, orderCode)
	info, _ := args.Get(0).(*gateway.PaymentLinkInfo)
	return info, args.Error(1)
}

func (m *GatewayMock) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*gateway.PaymentLinkInfo, error) {
	args := m.Called(ctx, orderCode, reason)
	info, _ := args.Get(0).(*gateway.PaymentLinkInfo)
	return info, args.Error(1)
}

func (m *GatewayMock) VerifySignature(body gateway.WebhookBody) bool {
	args := m.Called(body)
	return args.Bool(0)
}
