package payments

// Outcome is the final result of a payment attempt.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Source records how a verification was established.
type Source string

const (
	SourceCallback Source = "callback"
	SourceGateway  Source = "gateway_lookup"
)

// Verification is proof that a payment outcome was vouched for, either by a
// correctly signed callback or by asking the gateway. Only this package can
// build one, so the order ledger cannot be moved by an unverified claim.
type Verification struct {
	gatewayOrderID   string
	gatewayPaymentID string
	signature        string
	outcome          Outcome
	failureReason    string
	source           Source
}

func (v Verification) GatewayOrderID() string   { return v.gatewayOrderID }
func (v Verification) GatewayPaymentID() string { return v.gatewayPaymentID }
func (v Verification) Signature() string        { return v.signature }
func (v Verification) Outcome() Outcome         { return v.outcome }
func (v Verification) FailureReason() string    { return v.failureReason }
func (v Verification) Source() Source           { return v.source }

// Valid reports whether the value was minted by this package.
func (v Verification) Valid() bool {
	if v.gatewayOrderID == "" {
		return false
	}
	switch v.outcome {
	case OutcomeCompleted:
		return v.gatewayPaymentID != ""
	case OutcomeFailed:
		return true
	default:
		return false
	}
}
