package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/roles"
)

// Status is the lifecycle position of a purchase order.
type Status string

// Order statuses
const (
	StatusPending          Status = "pending"
	StatusAwaitingDeputyMD Status = "awaiting_deputy_md"
	StatusAwaitingMD       Status = "awaiting_md"
	StatusApproved         Status = "approved"
	StatusDenied           Status = "denied"
)

// Statuses returns every valid status.
func Statuses() []Status {
	return []Status{StatusPending, StatusAwaitingDeputyMD, StatusAwaitingMD, StatusApproved, StatusDenied}
}

// IsValid returns true if the Status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAwaitingDeputyMD, StatusAwaitingMD, StatusApproved, StatusDenied:
		return true
	}
	return false
}

// IsTerminal returns true for statuses that accept no further decisions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

func (s Status) String() string {
	return string(s)
}

// Decision is a reviewer's verdict on an order.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// IsValid returns true if the Decision is a known value.
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionDenied
}

func (d Decision) String() string {
	return string(d)
}

// PurchaseOrder is a request to buy something, owned by its requester.
type PurchaseOrder struct {
	ID          string          `json:"id"`
	ItemName    string          `json:"item_name"`
	Quantity    int             `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
	Description string          `json:"description,omitempty"`
	VendorName  string          `json:"vendor_name"`
	RequesterID string          `json:"requested_by"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with o.
func (o *PurchaseOrder) Clone() *PurchaseOrder {
	c := *o
	return &c
}

// ApprovalRecord is one immutable entry in an order's audit trail.
// ApproverRole is the role held when the decision was made.
type ApprovalRecord struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"purchase_order_id"`
	ApproverID   string     `json:"approved_by"`
	ApproverRole roles.Role `json:"role"`
	Decision     Decision   `json:"status"`
	Comment      string     `json:"comments,omitempty"`
	DecidedAt    time.Time  `json:"approved_at"`
}
