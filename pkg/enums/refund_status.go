package enums

// RefundStatus mirrors the gateway status of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

var refundStatuses = closedSet[RefundStatus]{RefundStatusPending, RefundStatusSucceeded, RefundStatusFailed}

func (r RefundStatus) IsValid() bool { return refundStatuses.has(r) }
