package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalpayments "github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const callbackConsumer = "payment-callback"

// Verifier vouches for payment outcomes.
type Verifier interface {
	VerifyPayment(ctx context.Context, cb internalpayments.Callback) (internalpayments.Verification, bool)
	ConfirmWithGateway(ctx context.Context, gatewayOrderID string) (internalpayments.Verification, bool, error)
}

// Settler applies verified outcomes to the order ledger.
type Settler interface {
	MarkPaymentCompleted(ctx context.Context, v internalpayments.Verification) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, v internalpayments.Verification) (*models.Order, error)
}

// Guard applies each gateway payment at most once.
type Guard interface {
	ProcessOnce(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (duplicate bool, err error)
}

type unguarded struct{}

func (unguarded) ProcessOnce(ctx context.Context, _, _ string, fn func(context.Context) error) (bool, error) {
	return false, fn(ctx)
}

type callbackRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required,max=255"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required,max=255"`
	Signature        string `json:"signature" validate:"required,max=512"`
}

type failureRequest struct {
	GatewayOrderID string `json:"gateway_order_id" validate:"required,max=255"`
}

// SettlementResponse reports the payment state after a callback was applied.
type SettlementResponse struct {
	OrderID       string              `json:"order_id,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Duplicate     bool                `json:"duplicate,omitempty"`
}

// Callback applies a signed payment-success callback relayed by the client.
// Unsigned or mis-signed callbacks never reach the ledger.
func Callback(verifier Verifier, settler Settler, guard Guard, logg *logger.Logger) http.HandlerFunc {
	if guard == nil {
		guard = unguarded{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if verifier == nil || settler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		var payload callbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		verification, ok := verifier.VerifyPayment(ctx, internalpayments.Callback{
			GatewayOrderID:   strings.TrimSpace(payload.GatewayOrderID),
			GatewayPaymentID: strings.TrimSpace(payload.GatewayPaymentID),
			Signature:        strings.TrimSpace(payload.Signature),
		})
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature invalid"))
			return
		}

		var order *models.Order
		apply := func(ctx context.Context) error {
			var err error
			order, err = settler.MarkPaymentCompleted(ctx, verification)
			return err
		}
		duplicate, err := guard.ProcessOnce(ctx, callbackConsumer, verification.GatewayPaymentID(), apply)
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if duplicate {
			responses.WriteSuccess(w, SettlementResponse{PaymentStatus: enums.PaymentStatusCompleted, Duplicate: true})
			return
		}

		if logg != nil {
			logg.Info(logg.WithOrderID(ctx, order.ID.String()), "payment.callback_applied")
		}
		responses.WriteSuccess(w, SettlementResponse{OrderID: order.ID.String(), PaymentStatus: order.PaymentStatus})
	}
}

// Failure handles a client-reported payment failure. The report itself is not
// trusted; the outcome comes from asking the gateway.
func Failure(verifier Verifier, settler Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if verifier == nil || settler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		var payload failureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		verification, final, err := verifier.ConfirmWithGateway(ctx, strings.TrimSpace(payload.GatewayOrderID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !final {
			responses.WriteSuccessStatus(w, http.StatusAccepted, SettlementResponse{PaymentStatus: enums.PaymentStatusPending})
			return
		}

		var order *models.Order
		switch verification.Outcome() {
		case internalpayments.OutcomeFailed:
			order, err = settler.MarkPaymentFailed(ctx, verification)
		default:
			order, err = settler.MarkPaymentCompleted(ctx, verification)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, SettlementResponse{OrderID: order.ID.String(), PaymentStatus: order.PaymentStatus})
	}
}
