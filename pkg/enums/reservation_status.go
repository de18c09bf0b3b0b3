package enums

// ReservationStatus tracks a per-order, per-product stock hold. Only held
// reservations count against availability.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

var reservationStatuses = closedSet[ReservationStatus]{ReservationHeld, ReservationReleased, ReservationCommitted}

func (r ReservationStatus) IsValid() bool { return reservationStatuses.has(r) }
