package workflow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/requests"
)

// Get returns a request to its producer or to an identity whose role and jurisdiction cover it.
func (c *Controller) Get(ctx context.Context, requestID int64, viewer common.Address) (requests.ProductionRequest, error) {
	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		return requests.ProductionRequest{}, translate(err)
	}
	if req.Producer == viewer {
		return req, nil
	}

	v, err := c.lookupActor(ctx, viewer)
	if err != nil {
		return requests.ProductionRequest{}, translate(err)
	}
	if !identity.CanView(v, req.ProducerJurisdiction) {
		return requests.ProductionRequest{}, NewForbiddenError(fmt.Sprintf("request %d is outside the viewer's jurisdiction", requestID))
	}
	return req, nil
}

// List returns requests visible to viewer. Producers only see their own requests. Other roles see requests in
// their jurisdiction; a narrower jurisdiction filter is allowed, a wider one is forbidden.
func (c *Controller) List(ctx context.Context, viewer common.Address, filter requests.Filter) ([]requests.ProductionRequest, error) {
	v, err := c.lookupActor(ctx, viewer)
	if err != nil {
		return nil, translate(err)
	}

	switch v.Role {
	case identity.RoleProducer:
		if filter.Producer != nil && *filter.Producer != viewer {
			return nil, NewForbiddenError("producers may only list their own requests")
		}
		filter.Producer = &viewer
	case identity.RoleBuyer:
		return nil, NewForbiddenError(fmt.Sprintf("role %s cannot list production requests", v.Role))
	default:
		if !v.Verified {
			return nil, NewForbiddenError("viewing identity is not verified")
		}
		if filter.Jurisdiction.Depth() <= 0 {
			filter.Jurisdiction = v.Jurisdiction
		} else if !v.Jurisdiction.Covers(filter.Jurisdiction) {
			return nil, NewForbiddenError(fmt.Sprintf("jurisdiction %s is outside the viewer's jurisdiction %s", filter.Jurisdiction, v.Jurisdiction))
		}
	}

	out, err := c.store.List(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
