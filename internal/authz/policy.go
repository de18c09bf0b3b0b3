// Package authz decides which actor may perform which order operation.
package authz

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Actor is the authenticated principal behind a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
	ShopID *uuid.UUID
}

// Operation names an order operation subject to policy.
type Operation string

const (
	OpCheckout     Operation = "checkout"
	OpView         Operation = "view"
	OpAdvance      Operation = "advance"
	OpCancel       Operation = "cancel"
	OpRetryPayment Operation = "retry_payment"
)

// Resource carries the order attributes a rule can look at. Zero values are
// fine for operations that do not target an existing order.
type Resource struct {
	OwnerID uuid.UUID
	ShopID  uuid.UUID
	Status  enums.OrderStatus
}

type ownership int

const (
	ownAny ownership = iota
	ownCustomer
	ownShop
)

type rule struct {
	ownership ownership
	statuses  []enums.OrderStatus
}

type ruleKey struct {
	op   Operation
	role enums.Role
}

var rules = map[ruleKey]rule{
	{OpCheckout, enums.RoleCustomer}:     {ownership: ownAny},
	{OpView, enums.RoleCustomer}:         {ownership: ownCustomer},
	{OpView, enums.RoleVendor}:           {ownership: ownShop},
	{OpView, enums.RoleAdmin}:            {ownership: ownAny},
	{OpAdvance, enums.RoleVendor}:        {ownership: ownShop},
	{OpAdvance, enums.RoleAdmin}:         {ownership: ownAny},
	{OpCancel, enums.RoleCustomer}:       {ownership: ownCustomer, statuses: []enums.OrderStatus{enums.OrderStatusProcessing}},
	{OpCancel, enums.RoleVendor}:         {ownership: ownShop},
	{OpCancel, enums.RoleAdmin}:          {ownership: ownAny},
	{OpRetryPayment, enums.RoleCustomer}: {ownership: ownCustomer},
	{OpRetryPayment, enums.RoleAdmin}:    {ownership: ownAny},
}

// Authorize returns a FORBIDDEN error unless the actor may perform op on res.
func Authorize(actor Actor, op Operation, res Resource) error {
	if !Allowed(actor, op, res) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "operation not permitted").
			WithDetails(map[string]any{"operation": string(op), "role": string(actor.Role)})
	}
	return nil
}

// Allowed reports the policy decision without building an error.
func Allowed(actor Actor, op Operation, res Resource) bool {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return false
	}
	r, ok := rules[ruleKey{op: op, role: actor.Role}]
	if !ok {
		return false
	}

	switch r.ownership {
	case ownCustomer:
		if res.OwnerID != actor.UserID {
			return false
		}
	case ownShop:
		if actor.ShopID == nil || *actor.ShopID != res.ShopID {
			return false
		}
	}

	if len(r.statuses) == 0 {
		return true
	}
	for _, status := range r.statuses {
		if status == res.Status {
			return true
		}
	}
	return false
}
