package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"pricepulse-client-go/internal/core/api"
	"pricepulse-client-go/internal/domain/eventbus"
	"pricepulse-client-go/internal/domain/session"
)

// Endpoints owned by the cart domain.
const (
	cartPath       = "/cart"
	addItemPath    = "/cart/add"
	updateItemPath = "/cart/update"
	removeItemPath = "/cart/item/"
	clearPath      = "/cart/clear"
)

var (
	// ErrNotAuthenticated rejects cart operations without a signed-in session,
	// before any network call is made.
	ErrNotAuthenticated = errors.New("cart requires an authenticated session")
	// ErrSessionChanged discards a response that arrived after the session
	// identity it was issued under had already ended.
	ErrSessionChanged = errors.New("session changed while cart request was in flight")
	// ErrOutOfStock marks a mutation the server rejected for lack of stock.
	ErrOutOfStock = errors.New("insufficient stock")
)

// API is the slice of the HTTP client the cart domain uses.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// SessionReader is the read-only slice of the session machine the
// reconciler consults before and after every server round trip.
type SessionReader interface {
	Snapshot() session.Snapshot
	Generation() uint64
}

// Bus publishes cart replacement notifications.
type Bus interface {
	Publish(topic string, args ...interface{})
}

// Options encapsulates the dependencies required to construct a Reconciler.
type Options struct {
	API      API
	Sessions SessionReader
	Bus      Bus
	Logger   session.Logger
}

// Reconciler keeps a local mirror of the server-side cart. Every mutation is
// a full round trip: the request carries the delta, the response carries the
// entire cart, and the mirror is replaced wholesale. Mutations are serialized
// so responses cannot install out of order.
type Reconciler struct {
	mu     sync.RWMutex
	mirror Snapshot
	stock  map[string]int

	opMu sync.Mutex

	api      API
	sessions SessionReader
	bus      Bus
	logger   session.Logger
}

// NewReconciler wires a Reconciler using the supplied options.
func NewReconciler(opts Options) (*Reconciler, error) {
	if opts.API == nil {
		return nil, errors.New("cart reconciler requires an API client")
	}
	if opts.Sessions == nil {
		return nil, errors.New("cart reconciler requires a session reader")
	}
	if opts.Logger == nil {
		return nil, errors.New("cart reconciler requires a logger")
	}
	return &Reconciler{
		stock:    make(map[string]int),
		api:      opts.API,
		sessions: opts.Sessions,
		bus:      opts.Bus,
		logger:   opts.Logger,
	}, nil
}

// Snapshot returns the current mirror.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Item, len(r.mirror.Items))
	copy(items, r.mirror.Items)
	return Snapshot{Items: items}
}

// Load pulls the server cart into the mirror.
func (r *Reconciler) Load(ctx context.Context) (Snapshot, error) {
	return r.roundTrip(ctx, func(ctx context.Context, snap *Snapshot) error {
		return r.api.Get(ctx, cartPath, snap)
	})
}

// ObserveStock records availability learned from product pages so obviously
// doomed mutations fail before they reach the wire. Server validation still
// applies; this is only an early exit.
func (r *Reconciler) ObserveStock(productID string, available int) {
	if productID == "" || available < 0 {
		return
	}
	r.mu.Lock()
	r.stock[productID] = available
	r.mu.Unlock()
}

// AddItem adds quantity of a product. The server validates stock; a
// rejection leaves the mirror untouched.
func (r *Reconciler) AddItem(ctx context.Context, productID string, quantity int) (Snapshot, error) {
	if productID == "" {
		return r.Snapshot(), fmt.Errorf("%w: product id is required", api.ErrValidationFailed)
	}
	if quantity <= 0 {
		return r.Snapshot(), fmt.Errorf("%w: quantity must be positive", api.ErrValidationFailed)
	}
	if err := r.checkStock(productID, r.lineQuantity(productID)+quantity); err != nil {
		return r.Snapshot(), err
	}
	return r.roundTrip(ctx, func(ctx context.Context, snap *Snapshot) error {
		return r.api.Post(ctx, addItemPath, map[string]any{
			"productId": productID,
			"quantity":  quantity,
		}, snap)
	})
}

// UpdateItem sets the absolute quantity of a line.
func (r *Reconciler) UpdateItem(ctx context.Context, productID string, quantity int) (Snapshot, error) {
	if productID == "" {
		return r.Snapshot(), fmt.Errorf("%w: product id is required", api.ErrValidationFailed)
	}
	if quantity <= 0 {
		return r.Snapshot(), fmt.Errorf("%w: quantity must be positive", api.ErrValidationFailed)
	}
	if err := r.checkStock(productID, quantity); err != nil {
		return r.Snapshot(), err
	}
	return r.roundTrip(ctx, func(ctx context.Context, snap *Snapshot) error {
		return r.api.Put(ctx, updateItemPath, map[string]any{
			"productId": productID,
			"quantity":  quantity,
		}, snap)
	})
}

// RemoveItem drops a line from the cart.
func (r *Reconciler) RemoveItem(ctx context.Context, productID string) (Snapshot, error) {
	if productID == "" {
		return r.Snapshot(), fmt.Errorf("%w: product id is required", api.ErrValidationFailed)
	}
	return r.roundTrip(ctx, func(ctx context.Context, snap *Snapshot) error {
		return r.api.Delete(ctx, removeItemPath+productID, snap)
	})
}

// Clear empties the cart. The server acknowledges without returning the
// cart, so the mirror is emptied locally on success.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	generation, err := r.precheck()
	if err != nil {
		return err
	}
	if err := r.api.Delete(ctx, clearPath, nil); err != nil {
		return stockError(err)
	}
	return r.install(generation, Snapshot{})
}

// Reset empties the mirror and the stock observations without a server
// call. Used when the session ends: the server cart belongs to the account,
// not the device. Reset publishes nothing — it runs inside the bus dispatch
// of the session event that triggers it, and the bus mutex is not
// reentrant; subscribers ride on that session event instead.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.mirror = Snapshot{}
	r.stock = make(map[string]int)
	r.mu.Unlock()
}

// roundTrip runs one serialized mutation or load against the server and
// installs the returned cart, unless the session changed underneath it.
func (r *Reconciler) roundTrip(ctx context.Context, call func(ctx context.Context, snap *Snapshot) error) (Snapshot, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	generation, err := r.precheck()
	if err != nil {
		return r.Snapshot(), err
	}

	var snap Snapshot
	if err := call(ctx, &snap); err != nil {
		return r.Snapshot(), stockError(err)
	}
	if err := r.install(generation, snap); err != nil {
		return r.Snapshot(), err
	}
	return r.Snapshot(), nil
}

func (r *Reconciler) precheck() (uint64, error) {
	if !r.sessions.Snapshot().Authenticated() {
		return 0, ErrNotAuthenticated
	}
	return r.sessions.Generation(), nil
}

// install replaces the mirror with the server's cart, unless the session
// identity moved on while the request was in flight.
func (r *Reconciler) install(generation uint64, snap Snapshot) error {
	if r.sessions.Generation() != generation {
		r.logger.Debug("discarding cart response from a previous session")
		return ErrSessionChanged
	}
	r.mu.Lock()
	r.mirror = snap
	for _, item := range snap.Items {
		r.stock[item.Product.ID] = item.Product.Stock
	}
	r.mu.Unlock()
	r.publish(snap)
	return nil
}

// lineQuantity returns the mirrored quantity of a product, zero when absent.
func (r *Reconciler) lineQuantity(productID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.mirror.Items {
		if item.Product.ID == productID {
			return item.Quantity
		}
	}
	return 0
}

// checkStock fails fast against recorded availability. Unknown products
// pass; the server remains the authority.
func (r *Reconciler) checkStock(productID string, wanted int) error {
	r.mu.RLock()
	available, known := r.stock[productID]
	r.mu.RUnlock()
	if !known {
		return nil
	}
	if available == 0 {
		return fmt.Errorf("%w: %w: product out of stock", ErrOutOfStock, api.ErrValidationFailed)
	}
	if wanted > available {
		return fmt.Errorf("%w: %w: only %d items available in stock", ErrOutOfStock, api.ErrValidationFailed, available)
	}
	return nil
}

func (r *Reconciler) publish(snap Snapshot) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.EventCartReplaced, snap)
}

// stockError surfaces the server's stock rejections distinctly so callers
// can offer a quantity adjustment instead of a generic failure.
func stockError(err error) error {
	if err == nil {
		return nil
	}
	var typed *api.Error
	if errors.As(err, &typed) && typed.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(typed.Message), "stock") {
		return fmt.Errorf("%w: %w", ErrOutOfStock, err)
	}
	return err
}
