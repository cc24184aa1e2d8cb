package orders

import (
	"github.com/safar/electrostore/internal/models"
)

type Transition struct {
	From models.OrderStatus
	To   models.OrderStatus
}

// Rule describes who may apply a transition and what it does besides
// changing the status.
type Rule struct {
	Roles          []models.Role
	OwnerOnly      bool
	ReleaseStock   bool
	StampDelivered bool
}

var Rules = map[Transition]Rule{
	{models.OrderStatusProcessing, models.OrderStatusInTransit}: {
		Roles: []models.Role{models.RoleProductManager},
	},
	{models.OrderStatusProcessing, models.OrderStatusDelivered}: {
		Roles:          []models.Role{models.RoleProductManager},
		StampDelivered: true,
	},
	{models.OrderStatusInTransit, models.OrderStatusDelivered}: {
		Roles:          []models.Role{models.RoleProductManager},
		StampDelivered: true,
	},
	{models.OrderStatusProcessing, models.OrderStatusCancelled}: {
		Roles:        []models.Role{models.RoleCustomer, models.RoleProductManager, models.RoleSalesManager},
		ReleaseStock: true,
	},
	{models.OrderStatusDelivered, models.OrderStatusRefundRequested}: {
		Roles:     []models.Role{models.RoleCustomer},
		OwnerOnly: true,
	},
	{models.OrderStatusRefundRequested, models.OrderStatusRefundApproved}: {
		Roles:        []models.Role{models.RoleSalesManager},
		ReleaseStock: true,
	},
	{models.OrderStatusRefundRequested, models.OrderStatusRefundDenied}: {
		Roles: []models.Role{models.RoleSalesManager},
	},
}

func Lookup(from, to models.OrderStatus) (Rule, bool) {
	rule, ok := Rules[Transition{From: from, To: to}]
	return rule, ok
}

// Allows reports whether actor may apply the rule to an order owned by
// ownerID. Customers can only ever act on their own orders.
func (r Rule) Allows(actor models.Actor, ownerID int64) bool {
	permitted := false
	for _, role := range r.Roles {
		if role == actor.Role {
			permitted = true
			break
		}
	}
	if !permitted {
		return false
	}
	if r.OwnerOnly || actor.Role == models.RoleCustomer {
		return actor.UserID == ownerID
	}
	return true
}

// Targets lists the statuses reachable from status.
func Targets(from models.OrderStatus) []models.OrderStatus {
	var targets []models.OrderStatus
	for t := range Rules {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	return targets
}
