package models

// All lists every persisted model, in dependency order, for schema bootstrapping in tests.
func All() []any {
	return []any{
		&Product{},
		&InventoryItem{},
		&InventoryReservation{},
		&CartItem{},
		&Order{},
		&OrderLineItem{},
		&PaymentRecord{},
		&PaymentRefund{},
		&TrackingEvent{},
		&Notification{},
		&OutboxEvent{},
	}
}
