package models

import "fmt"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusInTransit       OrderStatus = "in-transit"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefundRequested OrderStatus = "refund-requested"
	OrderStatusRefundApproved  OrderStatus = "refund-approved"
	OrderStatusRefundDenied    OrderStatus = "refund-denied"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefundRequested,
	OrderStatusRefundApproved,
	OrderStatusRefundDenied,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefundApproved, OrderStatusRefundDenied:
		return true
	default:
		return false
	}
}

// CountsAsRevenue is false for orders whose money was never kept.
func (s OrderStatus) CountsAsRevenue() bool {
	for _, excluded := range NonRevenueStatuses() {
		if s == excluded {
			return false
		}
	}
	return true
}

// NonRevenueStatuses lists the statuses excluded from every revenue rollup.
func NonRevenueStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusCancelled, OrderStatusRefundApproved}
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusDenied    RefundStatus = "denied"
)

func (r RefundStatus) IsValid() bool {
	switch r {
	case RefundStatusRequested, RefundStatusApproved, RefundStatusDenied:
		return true
	default:
		return false
	}
}

func ParseRefundStatus(value string) (RefundStatus, error) {
	status := RefundStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid refund status %q", value)
	}
	return status, nil
}

// Role gates management operations.
type Role string

const (
	RoleCustomer       Role = "customer"
	RoleProductManager Role = "product_manager"
	RoleSalesManager   Role = "sales_manager"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleProductManager, RoleSalesManager:
		return true
	default:
		return false
	}
}

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", value)
	}
	return role, nil
}
