package orders

import "github.com/angelmondragon/orderflow-backend/pkg/enums"

var happyPath = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusProcessing:     enums.OrderStatusPacked,
	enums.OrderStatusPacked:         enums.OrderStatusShipped,
	enums.OrderStatusShipped:        enums.OrderStatusOutForDelivery,
	enums.OrderStatusOutForDelivery: enums.OrderStatusDelivered,
}

// NextStatus returns the only status an order may advance to from status.
func NextStatus(status enums.OrderStatus) (enums.OrderStatus, bool) {
	next, ok := happyPath[status]
	return next, ok
}

// CanAdvance reports whether to is the immediate successor of from.
func CanAdvance(from, to enums.OrderStatus) bool {
	next, ok := NextStatus(from)
	return ok && next == to
}

// CanCancel reports whether an order in status may still be cancelled.
func CanCancel(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusProcessing, enums.OrderStatusPacked, enums.OrderStatusShipped:
		return true
	default:
		return false
	}
}

// CanTransitionPayment reports whether the payment machine allows from -> to
// for an order currently in orderStatus. A failed payment may still be
// completed by a verified late capture.
func CanTransitionPayment(from, to enums.PaymentStatus, orderStatus enums.OrderStatus) bool {
	switch from {
	case enums.PaymentStatusPending:
		return to == enums.PaymentStatusCompleted || to == enums.PaymentStatusFailed
	case enums.PaymentStatusFailed:
		return to == enums.PaymentStatusCompleted
	case enums.PaymentStatusCompleted:
		return to == enums.PaymentStatusRefunded && orderStatus == enums.OrderStatusCancelled
	default:
		return false
	}
}
