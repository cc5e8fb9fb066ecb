// Package identity reconciles the federated-login session and the backend's
// native credential into one current customer.
//
// Resolution order: an active federated session wins; otherwise a stored
// access token is validated against the backend; otherwise the visitor is
// anonymous. A federated identity is provisioned into the backend's customer
// directory exactly once per email, tracked by a small ledger.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/serial"
)

const (
	namespace   = "identity"
	tokenKey    = "token"
	profileKey  = "profile"
	provisionNS = "provision:"
)

// FederatedSession is what the federated-login provider reports for a signed-in principal.
type FederatedSession struct {
	UID       string
	Email     string
	Name      string
	FirstName string
	LastName  string
}

// FederatedProvider is the external login provider.
type FederatedProvider interface {
	// Session returns the active session, or nil when nobody is signed in.
	Session(ctx context.Context) (*FederatedSession, error)
	// SignOut terminates the provider session.
	SignOut(ctx context.Context) error
}

// Status is the reconciler's lifecycle state.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusAnonymous     Status = "anonymous"
	StatusAuthenticated Status = "authenticated"
)

// State is the current customer view.
type State struct {
	Identity *model.CustomerIdentity `json:"identity,omitempty"`
	Status   Status                  `json:"status"`
	Loading  bool                    `json:"loading"`
}

// Authenticated reports whether a customer is signed in.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// Email returns the signed-in customer's email, or "".
func (s State) Email() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Email
}

// Result is the outcome of Login and Register. Error carries the backend
// message verbatim when Success is false.
type Result struct {
	Success  bool                    `json:"success"`
	Error    string                  `json:"error,omitempty"`
	Kind     model.ErrorKind         `json:"kind,omitempty"`
	Identity *model.CustomerIdentity `json:"identity,omitempty"`
}

func failure(err error) Result {
	re := model.Normalize(err)
	return Result{Success: false, Error: re.Message, Kind: re.Kind}
}

// RegisterInput creates a native account.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Reconciler owns the identity namespace of the persistence store.
type Reconciler struct {
	backend   gateway.CustomerAPI
	federated FederatedProvider
	store     persist.Store
	logger    *slog.Logger
	queue     serial.Queue
	now       func() time.Time

	mu    sync.Mutex
	state State

	subMu       sync.Mutex
	nextSub     int
	subscribers map[int]func(prev, next State)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler. federated may be nil when no provider is configured.
func New(backend gateway.CustomerAPI, federated FederatedProvider, store persist.Store, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Reconciler{
		backend:     backend,
		federated:   federated,
		store:       persist.Namespace(store, namespace),
		logger:      logger.With("component", "identity"),
		now:         time.Now,
		state:       State{Status: StatusUnknown},
		subscribers: make(map[int]func(prev, next State)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the current state.
func (r *Reconciler) Current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for every state change. The returned func unsubscribes.
func (r *Reconciler) Subscribe(fn func(prev, next State)) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *Reconciler) setState(update func(*State)) {
	r.mu.Lock()
	prev := r.state
	update(&r.state)
	next := r.state
	r.mu.Unlock()

	r.subMu.Lock()
	subs := make([]func(prev, next State), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(prev, next)
	}
}

func (r *Reconciler) setLoading(loading bool) {
	r.setState(func(s *State) { s.Loading = loading })
}

func (r *Reconciler) become(identity *model.CustomerIdentity) {
	r.setState(func(s *State) {
		s.Identity = identity
		s.Loading = false
		if identity == nil {
			s.Status = StatusAnonymous
		} else {
			s.Status = StatusAuthenticated
		}
	})
}

// === Resolution ===

// Resolve determines the current customer. It never fails: provider and
// backend errors degrade to the next source in the resolution order.
func (r *Reconciler) Resolve(ctx context.Context) State {
	r.setLoading(true)

	if identity := r.resolveFederated(ctx); identity != nil {
		r.become(identity)
		return r.Current()
	}
	r.become(r.resolveNative(ctx))
	return r.Current()
}

func (r *Reconciler) resolveFederated(ctx context.Context) *model.CustomerIdentity {
	if r.federated == nil {
		return nil
	}
	sess, err := r.federated.Session(ctx)
	if err != nil {
		r.logger.Warn("federated session lookup failed", "error", err)
		return nil
	}
	if sess == nil || sess.Email == "" {
		return nil
	}

	entry := r.provision(ctx, sess)

	first, last := sess.FirstName, sess.LastName
	if first == "" && last == "" && sess.Name != "" {
		first, last = splitName(sess.Name)
	}
	id := sess.UID
	if entry.CustomerID != "" {
		id = entry.CustomerID
	}
	return &model.CustomerIdentity{
		ID:          id,
		Email:       sess.Email,
		FirstName:   first,
		LastName:    last,
		DisplayName: model.DisplayNameFor(first, last, sess.Email),
		Origin:      model.OriginFederated,
	}
}

func (r *Reconciler) resolveNative(ctx context.Context) *model.CustomerIdentity {
	var token model.AccessToken
	ok, err := persist.GetJSON(r.store, tokenKey, &token)
	if err != nil {
		r.logger.Warn("discarding unreadable access token", "error", err)
		r.clearNative()
		return nil
	}
	if !ok || token.Token == "" {
		return nil
	}
	if token.Expired(r.now()) {
		r.logger.Info("stored access token expired")
		r.clearNative()
		return nil
	}

	customer, err := r.backend.FetchCustomer(ctx, token.Token)
	if err == nil {
		identity := nativeIdentity(customer)
		r.storeProfile(identity)
		return identity
	}

	if model.KindOf(err) == model.KindUnauthorized {
		r.logger.Info("stored access token rejected", "error", err)
		r.clearNative()
		return nil
	}

	// Backend unreachable: keep the token and trust the last known profile.
	r.logger.Warn("validating access token failed", "error", err)
	var profile model.CustomerIdentity
	if ok, perr := persist.GetJSON(r.store, profileKey, &profile); ok && perr == nil {
		return &profile
	}
	return nil
}

// === Native login ===

// Login exchanges credentials for an access token and loads the profile.
// Token and profile are stored only once both succeed, so a failed login
// leaves any existing sign-in untouched.
func (r *Reconciler) Login(ctx context.Context, email, password string) Result {
	if strings.TrimSpace(email) == "" {
		return Result{Error: "email is required", Kind: model.KindRemoteValidation}
	}

	r.setLoading(true)
	defer r.setLoading(false)

	token, err := r.backend.CreateAccessToken(ctx, email, password)
	if err != nil {
		r.logger.Info("login rejected", "error", err)
		return failure(err)
	}

	customer, err := r.backend.FetchCustomer(ctx, token.Token)
	if err != nil {
		r.logger.Warn("loading profile after login failed", "error", err)
		return failure(err)
	}
	if err := persist.SetJSON(r.store, tokenKey, token); err != nil {
		return failure(err)
	}

	identity := nativeIdentity(customer)
	r.storeProfile(identity)
	r.become(identity)
	r.logger.Info("customer logged in", "origin", identity.Origin)
	return Result{Success: true, Identity: identity}
}

// Register creates a native account and then logs in with the same
// credentials. Creating the account does not authenticate by itself.
func (r *Reconciler) Register(ctx context.Context, in RegisterInput) Result {
	if strings.TrimSpace(in.Email) == "" {
		return Result{Error: "email is required", Kind: model.KindRemoteValidation}
	}
	if in.Password == "" {
		return Result{Error: "password is required", Kind: model.KindRemoteValidation}
	}

	r.setLoading(true)
	_, err := r.backend.CreateCustomer(ctx, model.CustomerInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	r.setLoading(false)
	if err != nil {
		r.logger.Info("registration rejected", "error", err)
		return failure(err)
	}
	return r.Login(ctx, in.Email, in.Password)
}

// Logout clears the native credential and profile. A federated identity also
// has its provider session terminated; otherwise the next Resolve would bring
// it straight back. Local state is cleared even if SignOut fails.
func (r *Reconciler) Logout(ctx context.Context) error {
	prev := r.Current()

	r.clearNative()
	r.become(nil)

	if prev.Identity == nil || prev.Identity.Origin != model.OriginFederated || r.federated == nil {
		return nil
	}
	if err := r.federated.SignOut(ctx); err != nil {
		r.logger.Warn("federated sign-out failed", "error", err)
		return model.Normalize(err)
	}
	return nil
}

// === Storage helpers ===

func (r *Reconciler) storeProfile(identity *model.CustomerIdentity) {
	if err := persist.SetJSON(r.store, profileKey, identity); err != nil {
		r.logger.Error("persisting profile", "error", err)
	}
}

func (r *Reconciler) clearNative() {
	err := errors.Join(r.store.Remove(tokenKey), r.store.Remove(profileKey))
	if err != nil {
		r.logger.Error("clearing credentials", "error", err)
	}
}

func nativeIdentity(c *model.Customer) *model.CustomerIdentity {
	return &model.CustomerIdentity{
		ID:          c.ID,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DisplayName: model.DisplayNameFor(c.FirstName, c.LastName, c.Email),
		Origin:      model.OriginNative,
	}
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, " "); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}
