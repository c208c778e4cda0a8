// Package approval implements the purchase-order approval engine: the pure
// transition function, the visibility policy, and the Service that applies
// decisions atomically against an orders.Store.
//
// Paths:
//
//	pending --specialist--> awaiting_deputy_md (cost <= 1000) --deputy_md--> approved
//	pending --specialist--> awaiting_md        (cost >  1000) --md-------->  approved
//
// Any reviewer of the current stage may deny instead. admin acts as the
// reviewer of whichever stage the order is in.
package approval

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// CostThreshold splits the review path. Costs above it need the MD.
var CostThreshold = decimal.NewFromInt(1000)

// RequiresMD reports whether cost is above the threshold.
func RequiresMD(cost decimal.Decimal) bool {
	return cost.GreaterThan(CostThreshold)
}

// routeAfterSpecialist picks the second review stage for cost.
func routeAfterSpecialist(cost decimal.Decimal) orders.Status {
	if RequiresMD(cost) {
		return orders.StatusAwaitingMD
	}
	return orders.StatusAwaitingDeputyMD
}

// StageReviewer returns the role that reviews an order in status given its
// cost. ok is false for terminal statuses and for an order parked at a stage
// its cost does not belong to.
func StageReviewer(status orders.Status, cost decimal.Decimal) (roles.Role, bool) {
	switch status {
	case orders.StatusPending:
		return roles.Specialist, true
	case orders.StatusAwaitingDeputyMD:
		if !RequiresMD(cost) {
			return roles.DeputyMD, true
		}
	case orders.StatusAwaitingMD:
		if RequiresMD(cost) {
			return roles.MD, true
		}
	}
	return "", false
}

// Transition computes the status that follows a decision by role on an order
// in status with the given cost. It has no side effects.
func Transition(status orders.Status, cost decimal.Decimal, role roles.Role, decision orders.Decision) (orders.Status, error) {
	if !decision.IsValid() {
		return "", fmt.Errorf("decision %q: %w", decision, ErrInvalidInput)
	}
	if !status.IsValid() {
		return "", invalidState(status, "unknown status")
	}
	if status.IsTerminal() {
		return "", invalidState(status, "order already closed")
	}
	if !roles.CanDecide(role) {
		return "", fmt.Errorf("role %s cannot review purchase orders: %w", role, ErrForbidden)
	}

	// admin takes the place of the stage reviewer
	acting := role
	if roles.IsAdminOverride(role) {
		acting = stageRoleForAdmin(status)
	}

	if roles.IsReviewer(role) {
		want, ok := StageReviewer(status, cost)
		if !ok || want != role {
			return "", invalidState(status, fmt.Sprintf("not awaiting %s review", role))
		}
	}

	if decision == orders.DecisionDenied {
		return orders.StatusDenied, nil
	}
	if acting == roles.Specialist {
		return routeAfterSpecialist(cost), nil
	}
	return orders.StatusApproved, nil
}

// stageRoleForAdmin maps a non-terminal status to the reviewer admin stands in
// for. The cost check is skipped: admin may close a mis-routed order.
func stageRoleForAdmin(status orders.Status) roles.Role {
	switch status {
	case orders.StatusPending:
		return roles.Specialist
	case orders.StatusAwaitingDeputyMD:
		return roles.DeputyMD
	default:
		return roles.MD
	}
}
