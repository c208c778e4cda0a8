package approval

import (
	"fmt"

	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// VisibilityFilter returns the list filter for actor. visible is false when
// the role sees no orders at all.
//
// md is unrestricted, as is admin.
func VisibilityFilter(actor roles.Actor) (f orders.ListFilter, visible bool) {
	switch actor.Role {
	case roles.Employee:
		return orders.ListFilter{RequesterID: actor.ID}, true
	case roles.Specialist:
		return orders.ListFilter{Status: orders.StatusPending}, true
	case roles.DeputyMD:
		limit := CostThreshold
		return orders.ListFilter{Status: orders.StatusAwaitingDeputyMD, MaxCost: &limit}, true
	case roles.MD, roles.Admin:
		return orders.ListFilter{}, true
	}
	return orders.ListFilter{}, false
}

// CanView returns ErrForbidden if actor may not read o or its history.
// Employees read only their own orders; other roles read any order.
func CanView(actor roles.Actor, o *orders.PurchaseOrder) error {
	if actor.Role == roles.Employee && o.RequesterID != actor.ID {
		return fmt.Errorf("order %s belongs to another employee: %w", o.ID, ErrForbidden)
	}
	return nil
}
