package cart

// Product is the subset of the catalog entry embedded in cart items. The
// server expands the reference on every cart response.
type Product struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
	Image string  `json:"image,omitempty"`
}

// Item is one cart line.
type Item struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Snapshot is the server-confirmed cart contents. The server's version is
// authoritative; the client never edits a snapshot in place.
type Snapshot struct {
	Items []Item `json:"items"`
}

// Empty reports whether the cart holds no items.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// TotalQuantity sums the quantities across all lines.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums price times quantity across all lines.
func (s Snapshot) Subtotal() float64 {
	total := 0.0
	for _, item := range s.Items {
		total += item.Product.Price * float64(item.Quantity)
	}
	return total
}
