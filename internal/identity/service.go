package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/audit"
)

// Service wraps the directory with the administrative operations.
type Service struct {
	store    Store
	reader   Directory
	recorder *audit.Recorder
	now      func() time.Time
}

// NewService returns a Service that writes through store and reads through reader (typically a CachedDirectory over store).
func NewService(store Store, reader Directory, recorder *audit.Recorder) *Service {
	if reader == nil {
		reader = store
	}
	return &Service{store: store, reader: reader, recorder: recorder, now: time.Now}
}

// Lookup returns the identity registered for address.
func (s *Service) Lookup(ctx context.Context, address common.Address) (Identity, error) {
	return s.reader.Lookup(ctx, address)
}

// SetVerification changes target's verification flag on behalf of actor.
func (s *Service) SetVerification(ctx context.Context, actor, target common.Address, verified bool) (result Identity, err error) {
	event := audit.NewEvent(audit.ActionSetVerification, actor.Hex(), s.now())
	event.Target = target.Hex()
	event.Detail = fmt.Sprintf("verified=%t", verified)
	defer func() {
		if err != nil {
			event.Outcome = string(ErrorCodeOf(err))
			if event.Outcome == "" {
				event.Outcome = string(ErrCodeInternal)
			}
		}
		s.recorder.Record(ctx, event)
	}()

	a, err := s.store.Lookup(ctx, actor)
	if err != nil {
		if ErrorCodeOf(err) == ErrCodeNotFound {
			return Identity{}, NewForbiddenError("acting wallet is not a registered identity")
		}
		return Identity{}, err
	}
	t, err := s.store.Lookup(ctx, target)
	if err != nil {
		return Identity{}, err
	}
	if !CanAdminister(a, t) {
		return Identity{}, NewForbiddenError(forbiddenAdministerReason(a, t))
	}

	updated, err := s.store.SetVerified(ctx, target, verified)
	if err != nil {
		return Identity{}, err
	}
	if c, ok := s.reader.(*CachedDirectory); ok {
		c.Invalidate(target)
	}
	return updated, nil
}

// Onboard registers a new identity without an acting administrator. It is only exposed by the development admin API.
func (s *Service) Onboard(ctx context.Context, identity Identity) (Identity, error) {
	created, err := s.store.Create(ctx, identity)

	event := audit.NewEvent(audit.ActionOnboard, "admin-api", s.now())
	event.Target = identity.Address.Hex()
	event.Detail = fmt.Sprintf("role=%s jurisdiction=%s", identity.Role, identity.Jurisdiction)
	if err != nil {
		event.Outcome = string(ErrorCodeOf(err))
	}
	s.recorder.Record(ctx, event)

	return created, err
}

func forbiddenAdministerReason(actor, target Identity) string {
	switch {
	case !actor.Verified:
		return "acting identity is not verified"
	case actor.Address == target.Address:
		return "identities cannot administer themselves"
	case actor.Role.Rank() == 0 || actor.Role.Rank() >= target.Role.Rank():
		return fmt.Sprintf("role %s cannot administer role %s", actor.Role, target.Role)
	case !actor.Jurisdiction.Covers(target.Jurisdiction):
		return fmt.Sprintf("target jurisdiction %s is outside the actor's jurisdiction %s", target.Jurisdiction, actor.Jurisdiction)
	default:
		return fmt.Sprintf("role %s cannot administer role %s", actor.Role, target.Role)
	}
}

// ForbiddenCertifyReason explains why CanCertify returned false, so a legitimate authority can self-diagnose.
func ForbiddenCertifyReason(authority Identity, producerJurisdiction Jurisdiction) string {
	p := policies[authority.Role]
	switch {
	case !authority.Verified:
		return "certifying identity is not verified"
	case !containsRole(p.certifies, RoleProducer):
		return fmt.Sprintf("role %s cannot certify production requests", authority.Role)
	case !authority.Jurisdiction.Covers(producerJurisdiction):
		return fmt.Sprintf("producer jurisdiction %s is outside the authority's jurisdiction %s", producerJurisdiction, authority.Jurisdiction)
	default:
		return "authority jurisdiction is incomplete"
	}
}
