package validation

import "github.com/shopspring/decimal"

// CreatePurchaseOrderRequest is the payload for POST /purchase-orders.
// cost accepts a JSON number or string and is kept exact.
type CreatePurchaseOrderRequest struct {
	ItemName    string           `json:"item_name" validate:"required,notblank,max=255"`
	Quantity    int              `json:"quantity" validate:"required,min=1"`
	Cost        *decimal.Decimal `json:"cost" validate:"required"`
	Description string           `json:"description,omitempty" validate:"max=2000"`
	VendorName  string           `json:"vendor_name" validate:"required,notblank,max=255"`
}

// DecisionRequest is the payload for POST /purchase-orders/:id/approve.
type DecisionRequest struct {
	Status   string `json:"status" validate:"required,oneof=approved denied"`
	Comments string `json:"comments,omitempty" validate:"max=2000"`
}
