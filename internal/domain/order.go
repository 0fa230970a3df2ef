package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinorUnitFactor converts store currency (NGN) to the gateway's minor unit.
const MinorUnitFactor = 100

type PaymentMethod string

const (
	PayOnline     PaymentMethod = "Pay Online"
	PayOnDelivery PaymentMethod = "Pay on Delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PayOnline || m == PayOnDelivery
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// CanBecome reports whether the payment status may move to next. Payment
// only moves forward: pending or unpaid to paid or failed.
func (s PaymentStatus) CanBecome(next PaymentStatus) bool {
	if s != PaymentPending && s != PaymentUnpaid {
		return false
	}
	return next == PaymentPaid || next == PaymentFailed
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderCancelled},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return slices.Contains(orderTransitions[s], next)
}

// Customer is the purchaser snapshot taken when the order is placed.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ShippingAddress is the delivery address snapshot.
type ShippingAddress struct {
	AddressID  string `json:"address_id,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code,omitempty"`
	Label      string `json:"label,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Customer          Customer        `json:"customer"`
	Address           ShippingAddress `json:"address"`
	Items             []LineItem      `json:"items"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	OrderStatus       OrderStatus     `json:"order_status"`
	Subtotal          int64           `json:"subtotal"`
	DeliveryFee       int64           `json:"delivery_fee"`
	Total             int64           `json:"total"`
	TransactionRef    string          `json:"transaction_ref,omitempty"`
	PaymentURL        string          `json:"payment_url,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	AmountPaid        int64           `json:"amount_paid,omitempty"`
	PaymentVerifiedAt *time.Time      `json:"payment_verified_at,omitempty"`
	StockCommitted    bool            `json:"stock_committed"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AmountMinor is the total in the gateway's minor unit.
func (o *Order) AmountMinor() int64 {
	return o.Total * MinorUnitFactor
}

// NewTransactionRef builds "REF_<unix millis>_<16 hex chars>" with the
// suffix taken from a random uuid.
func NewTransactionRef(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("REF_%d_%s", now.UnixMilli(), hex[:16])
}

// PaymentUpdate is what a successful verification or webhook records.
type PaymentUpdate struct {
	Reference   string
	AmountMinor int64
	PaidAt      time.Time
	VerifiedAt  time.Time
}
