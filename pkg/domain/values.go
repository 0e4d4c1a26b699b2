package domain

// Value objects have no identity of their own: equality is structural and all
// fields are treated as immutable once embedded in an aggregate.

// Address is a postal delivery location.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
	Country    string `json:"country"`
}

func (a Address) Equal(other Address) bool { return a == other }

// Coordinates locates a machine installation.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) Equal(other Coordinates) bool { return c == other }

// OrderItem is an embedded line of an Order. Monetary amounts are integer
// cents so line math stays exact.
type OrderItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

func (i OrderItem) Equal(other OrderItem) bool { return i == other }

// LineTotalCents is the extended price of the line.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// UserPreferences captures notification and locale settings.
type UserPreferences struct {
	Language           string `json:"language"`
	Currency           string `json:"currency"`
	EmailNotifications bool   `json:"email_notifications"`
	PushNotifications  bool   `json:"push_notifications"`
}

func (p UserPreferences) Equal(other UserPreferences) bool { return p == other }
