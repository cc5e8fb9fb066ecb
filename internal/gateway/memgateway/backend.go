// Package memgateway is an in-process commerce backend implementing gateway.Gateway.
// It follows the remote contract closely enough to drive the synchronizers in
// tests and local development: identical merchandise merges into one line,
// totals are computed server-side, unknown handles are stale, and any call
// can be failed or held through hooks.
package memgateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
)

// Operation names used by hooks, fault injection and the call log.
const (
	OpCreateCart        = "CreateCart"
	OpAddCartLines      = "AddCartLines"
	OpUpdateCartLine    = "UpdateCartLine"
	OpRemoveCartLines   = "RemoveCartLines"
	OpFetchCart         = "FetchCart"
	OpCreateCustomer    = "CreateCustomer"
	OpCreateAccessToken = "CreateAccessToken"
	OpFetchCustomer     = "FetchCustomer"
	OpProductsByID      = "ProductsByID"
)

// Call records one gateway invocation.
type Call struct {
	Op   string
	Args []string
}

// Hook runs before an operation touches backend state. A non-nil error is
// returned to the caller instead of executing the operation. Hooks may block.
type Hook func(ctx context.Context, op string, args []string) error

type merchandise struct {
	productID string
	title     string
	price     model.Money
}

type customerRecord struct {
	customer model.Customer
	password string
}

type tokenRecord struct {
	email     string
	expiresAt time.Time
}

// Backend is the in-memory backend. Create with New.
type Backend struct {
	mu sync.Mutex

	currency    string
	taxRate     decimal.Decimal
	checkoutURL string
	tokenTTL    time.Duration
	now         func() time.Time

	carts       map[model.CartHandle]*model.Cart
	merchandise map[string]merchandise
	products    map[string]model.Product
	customers   map[string]*customerRecord
	tokens      map[string]tokenRecord

	hook     Hook
	failures map[string][]error
	calls    []Call
}

// Option configures a Backend.
type Option func(*Backend)

// WithTaxRate sets the tax rate applied to cart subtotals, e.g. 0.1 for 10%.
func WithTaxRate(rate float64) Option {
	return func(b *Backend) { b.taxRate = decimal.NewFromFloat(rate) }
}

// WithCurrency sets the ISO currency code for all prices.
func WithCurrency(code string) Option {
	return func(b *Backend) { b.currency = code }
}

// WithClock overrides time.Now for token expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		currency:    "USD",
		taxRate:     decimal.Zero,
		checkoutURL: "https://shop.example.test/checkouts/",
		tokenTTL:    48 * time.Hour,
		now:         time.Now,
		carts:       make(map[model.CartHandle]*model.Cart),
		merchandise: make(map[string]merchandise),
		products:    make(map[string]model.Product),
		customers:   make(map[string]*customerRecord),
		tokens:      make(map[string]tokenRecord),
		failures:    make(map[string][]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddProduct registers a product and its purchasable merchandise ID.
func (b *Backend) AddProduct(p model.Product, merchandiseID, price string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	money := model.MustMoney(price, b.currency)
	p.Price = money
	p.Available = true
	b.products[p.ID] = p
	b.merchandise[merchandiseID] = merchandise{productID: p.ID, title: p.Title, price: money}
}

// Delist marks a product unavailable. Its merchandise can no longer be added.
func (b *Backend) Delist(productID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.products[productID]; ok {
		p.Available = false
		b.products[productID] = p
	}
}

// DeleteCart removes a cart as if it expired server-side.
func (b *Backend) DeleteCart(handle model.CartHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.carts, handle)
}

// CartCount returns how many live carts exist.
func (b *Backend) CartCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.carts)
}

// RegisterCustomer seeds a native customer with a password.
func (b *Backend) RegisterCustomer(in model.CustomerInput) model.Customer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createCustomerLocked(in).customer
}

// HasCustomer reports whether a customer with email exists.
func (b *Backend) HasCustomer(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.customers[model.NormalizeEmail(email)]
	return ok
}

// RevokeTokens invalidates every access token.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]tokenRecord)
}

// SetHook installs a hook that runs before every operation.
func (b *Backend) SetHook(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = h
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], err)
}

// Calls returns a copy of the call log.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallCount returns how many times op was invoked.
func (b *Backend) CallCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// enter logs the call, runs the hook and pops an injected failure.
// On success it returns with b.mu held; the caller must unlock.
func (b *Backend) enter(ctx context.Context, op string, args ...string) error {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Op: op, Args: args})
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, args); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return model.NewNetworkError("memgateway", err)
	}

	b.mu.Lock()
	if queued := b.failures[op]; len(queued) > 0 {
		b.failures[op] = queued[1:]
		b.mu.Unlock()
		return queued[0]
	}
	return nil
}

// === Cart ===

func (b *Backend) CreateCart(ctx context.Context, lines []model.LineInput) (*model.Cart, error) {
	if err := b.enter(ctx, OpCreateCart); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	handle := model.CartHandle("gid://memgateway/Cart/" + uuid.NewString())
	cart := &model.Cart{
		Handle:      handle,
		CheckoutURL: b.checkoutURL + string(handle[strings.LastIndex(string(handle), "/")+1:]),
		Lines:       []model.CartLine{},
	}
	if err := b.addLinesLocked(cart, lines); err != nil {
		return nil, err
	}
	b.carts[handle] = cart
	return b.snapshotLocked(cart), nil
}

func (b *Backend) AddCartLines(ctx context.Context, handle model.CartHandle, lines []model.LineInput) (*model.Cart, error) {
	if err := b.enter(ctx, OpAddCartLines, string(handle)); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	cart, ok := b.carts[handle]
	if !ok {
		return nil, model.NewValidationError("INVALID", "The specified cart does not exist.")
	}
	if err := b.addLinesLocked(cart, lines); err != nil {
		return nil, err
	}
	return b.snapshotLocked(cart), nil
}

func (b *Backend) UpdateCartLine(ctx context.Context, handle model.CartHandle, lineID string, quantity int) (*model.Cart, error) {
	if err := b.enter(ctx, OpUpdateCartLine, string(handle), lineID, fmt.Sprint(quantity)); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	cart, ok := b.carts[handle]
	if !ok {
		return nil, model.NewValidationError("INVALID", "The specified cart does not exist.")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("INVALID", "quantity must be at least 1")
	}
	for i := range cart.Lines {
		if cart.Lines[i].LineID == lineID {
			cart.Lines[i].Quantity = quantity
			return b.snapshotLocked(cart), nil
		}
	}
	return nil, model.NewValidationError("INVALID", fmt.Sprintf("line not found: %s", lineID))
}

func (b *Backend) RemoveCartLines(ctx context.Context, handle model.CartHandle, lineIDs []string) (*model.Cart, error) {
	if err := b.enter(ctx, OpRemoveCartLines, append([]string{string(handle)}, lineIDs...)...); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	cart, ok := b.carts[handle]
	if !ok {
		return nil, model.NewValidationError("INVALID", "The specified cart does not exist.")
	}

	remove := make(map[string]bool, len(lineIDs))
	for _, id := range lineIDs {
		if _, found := cart.Line(id); !found {
			return nil, model.NewValidationError("INVALID", fmt.Sprintf("line not found: %s", id))
		}
		remove[id] = true
	}

	kept := cart.Lines[:0]
	for _, l := range cart.Lines {
		if !remove[l.LineID] {
			kept = append(kept, l)
		}
	}
	cart.Lines = kept
	return b.snapshotLocked(cart), nil
}

func (b *Backend) FetchCart(ctx context.Context, handle model.CartHandle) (*model.Cart, error) {
	if err := b.enter(ctx, OpFetchCart, string(handle)); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	cart, ok := b.carts[handle]
	if !ok {
		return nil, model.NewStaleHandleError(handle)
	}
	return b.snapshotLocked(cart), nil
}

// addLinesLocked merges lines into cart, folding identical merchandise into one line.
func (b *Backend) addLinesLocked(cart *model.Cart, lines []model.LineInput) error {
	for _, in := range lines {
		if in.Quantity < 1 {
			return model.NewValidationError("INVALID", "quantity must be at least 1")
		}
		m, ok := b.merchandise[in.MerchandiseID]
		if !ok || !b.products[m.productID].Available {
			return model.NewValidationError("INVALID", fmt.Sprintf("merchandise %s does not exist", in.MerchandiseID))
		}
	}
	for _, in := range lines {
		merged := false
		for i := range cart.Lines {
			if cart.Lines[i].MerchandiseID == in.MerchandiseID {
				cart.Lines[i].Quantity += in.Quantity
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		m := b.merchandise[in.MerchandiseID]
		cart.Lines = append(cart.Lines, model.CartLine{
			LineID:        "gid://memgateway/CartLine/" + uuid.NewString(),
			MerchandiseID: in.MerchandiseID,
			Title:         m.title,
			Quantity:      in.Quantity,
			UnitPrice:     m.price,
		})
	}
	return nil
}

// snapshotLocked recomputes line and cart totals and returns a deep copy.
func (b *Backend) snapshotLocked(cart *model.Cart) *model.Cart {
	subtotal := model.MustMoney("0", b.currency)
	qty := 0
	for i := range cart.Lines {
		l := &cart.Lines[i]
		l.LineTotal = l.UnitPrice.Mul(l.Quantity)
		subtotal = subtotal.Add(l.LineTotal)
		qty += l.Quantity
	}
	tax := model.Money{Amount: subtotal.Amount.Mul(b.taxRate).Round(2), Currency: subtotal.Currency}
	cart.TotalQuantity = qty
	cart.Totals = model.CartTotals{
		Subtotal: subtotal,
		Tax:      &tax,
		Total:    subtotal.Add(tax),
	}
	return cart.Clone()
}

// === Customer ===

func (b *Backend) CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	if err := b.enter(ctx, OpCreateCustomer, in.Email); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if strings.TrimSpace(in.Email) == "" {
		return nil, model.NewValidationError("BLANK", "Email can't be blank")
	}
	if _, exists := b.customers[model.NormalizeEmail(in.Email)]; exists {
		return nil, model.NewValidationError("TAKEN", "Email has already been taken")
	}
	c := b.createCustomerLocked(in).customer
	return &c, nil
}

func (b *Backend) createCustomerLocked(in model.CustomerInput) *customerRecord {
	rec := &customerRecord{
		customer: model.Customer{
			ID:        "gid://memgateway/Customer/" + uuid.NewString(),
			Email:     strings.TrimSpace(in.Email),
			FirstName: in.FirstName,
			LastName:  in.LastName,
		},
		password: in.Password,
	}
	b.customers[model.NormalizeEmail(in.Email)] = rec
	return rec
}

func (b *Backend) CreateAccessToken(ctx context.Context, email, password string) (*model.AccessToken, error) {
	if err := b.enter(ctx, OpCreateAccessToken, email); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	rec, ok := b.customers[model.NormalizeEmail(email)]
	// Customers provisioned without a password can never log in directly.
	if !ok || rec.password == "" || rec.password != password {
		return nil, model.NewValidationError("UNIDENTIFIED_CUSTOMER", "Unidentified customer")
	}

	token := uuid.NewString()
	expires := b.now().Add(b.tokenTTL)
	b.tokens[token] = tokenRecord{email: model.NormalizeEmail(email), expiresAt: expires}
	return &model.AccessToken{Token: token, ExpiresAt: expires}, nil
}

func (b *Backend) FetchCustomer(ctx context.Context, accessToken string) (*model.Customer, error) {
	if err := b.enter(ctx, OpFetchCustomer); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	rec, ok := b.tokens[accessToken]
	if !ok || b.now().After(rec.expiresAt) {
		delete(b.tokens, accessToken)
		return nil, model.NewUnauthorizedError("invalid customer access token")
	}
	c := b.customers[rec.email].customer
	return &c, nil
}

// === Catalog ===

func (b *Backend) ProductsByID(ctx context.Context, ids []string) ([]model.Product, error) {
	if err := b.enter(ctx, OpProductsByID, ids...); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := b.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Verify Backend implements Gateway interface at compile time.
var _ gateway.Gateway = (*Backend)(nil)
