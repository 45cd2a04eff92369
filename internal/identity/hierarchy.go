package identity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role is one of the six levels of the participant hierarchy.
type Role string

const (
	RoleTopAdmin      Role = "TOP_ADMIN"
	RoleRegionalAdmin Role = "REGIONAL_ADMIN"
	RoleLocalAdmin    Role = "LOCAL_ADMIN"
	RoleProducer      Role = "PRODUCER"
	RoleBuyer         Role = "BUYER"
	RoleAuditor       Role = "AUDITOR"
)

// rolePolicy is one row of the authorization table.
type rolePolicy struct {
	// rank orders the hierarchy; lower values outrank higher ones.
	rank int

	// minDepth and maxDepth bound how many jurisdiction fields (country, state, city) the role carries.
	minDepth int
	maxDepth int

	// administers lists the roles whose verification status this role may change.
	administers []Role

	// certifies lists the roles whose production requests this role may certify.
	certifies []Role
}

var policies = map[Role]rolePolicy{
	RoleTopAdmin: {
		rank:        1,
		minDepth:    1,
		maxDepth:    1,
		administers: []Role{RoleRegionalAdmin, RoleLocalAdmin, RoleProducer, RoleBuyer, RoleAuditor},
	},
	RoleRegionalAdmin: {
		rank:        2,
		minDepth:    2,
		maxDepth:    2,
		administers: []Role{RoleLocalAdmin, RoleProducer, RoleBuyer, RoleAuditor},
	},
	RoleLocalAdmin: {
		rank:        3,
		minDepth:    3,
		maxDepth:    3,
		administers: []Role{RoleProducer, RoleBuyer},
		certifies:   []Role{RoleProducer},
	},
	RoleProducer: {rank: 4, minDepth: 3, maxDepth: 3},
	RoleBuyer:    {rank: 4, minDepth: 1, maxDepth: 3},
	RoleAuditor:  {rank: 4, minDepth: 1, maxDepth: 3},
}

// ParseRole returns the Role for s (case-insensitive).
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := policies[r]; !ok {
		return "", NewValidationError(fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

// Rank returns the role's position in the hierarchy (1 is the top). Unknown roles return 0.
func (r Role) Rank() int {
	return policies[r].rank
}

// Jurisdiction is the (country, state, city) tuple scoping an identity.
// Fields are filled from the left: a state is only meaningful with a country, a city only with a state.
type Jurisdiction struct {
	Country string `json:"country"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
}

func (j Jurisdiction) fields() [3]string {
	return [3]string{
		strings.TrimSpace(j.Country),
		strings.TrimSpace(j.State),
		strings.TrimSpace(j.City),
	}
}

// Depth is the number of leading populated fields, or -1 if a field is set after a gap (e.g. city without state).
func (j Jurisdiction) Depth() int {
	f := j.fields()
	depth := 0
	for depth < len(f) && f[depth] != "" {
		depth++
	}
	for i := depth; i < len(f); i++ {
		if f[i] != "" {
			return -1
		}
	}
	return depth
}

// Covers reports whether j is equal to or an ancestor of other.
// Fields are compared case-insensitively. A malformed j covers nothing.
func (j Jurisdiction) Covers(other Jurisdiction) bool {
	depth := j.Depth()
	if depth < 0 || other.Depth() < depth {
		return false
	}
	mine, theirs := j.fields(), other.fields()
	for i := 0; i < depth; i++ {
		if !strings.EqualFold(mine[i], theirs[i]) {
			return false
		}
	}
	return true
}

func (j Jurisdiction) String() string {
	f := j.fields()
	parts := make([]string, 0, 3)
	for _, v := range f {
		if v == "" {
			break
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "/")
}

// Identity is a directory entry.
type Identity struct {
	Address      common.Address `json:"walletAddress"`
	Role         Role           `json:"role"`
	Jurisdiction Jurisdiction   `json:"jurisdiction"`
	Verified     bool           `json:"verified"`
}

// Validate checks the role is known and the jurisdiction has the depth the role requires.
func (i Identity) Validate() error {
	if i.Address == (common.Address{}) {
		return NewValidationError("wallet address is required")
	}
	p, ok := policies[i.Role]
	if !ok {
		return NewValidationError(fmt.Sprintf("unknown role %q", i.Role))
	}
	depth := i.Jurisdiction.Depth()
	if depth < 0 {
		return NewValidationError("jurisdiction fields must be populated from country downwards")
	}
	if depth < p.minDepth || depth > p.maxDepth {
		if p.minDepth == p.maxDepth {
			return NewValidationError(fmt.Sprintf("role %s requires exactly %d jurisdiction fields, got %d", i.Role, p.minDepth, depth))
		}
		return NewValidationError(fmt.Sprintf("role %s requires between %d and %d jurisdiction fields, got %d", i.Role, p.minDepth, p.maxDepth, depth))
	}
	return nil
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanCertify reports whether authority may certify a production request submitted by a producer
// whose jurisdiction is producerJurisdiction.
// The authority must be verified, hold a role that certifies producers,
// and have a jurisdiction equal to or an ancestor of the producer's.
func CanCertify(authority Identity, producerJurisdiction Jurisdiction) bool {
	if !authority.Verified {
		return false
	}
	p, ok := policies[authority.Role]
	if !ok || !containsRole(p.certifies, RoleProducer) {
		return false
	}
	if authority.Jurisdiction.Depth() < p.minDepth {
		return false
	}
	return authority.Jurisdiction.Covers(producerJurisdiction)
}

// CanAdminister reports whether actor may change target's verification status.
// The actor must be verified, strictly outrank the target, list the target's role among the roles it administers,
// and have a jurisdiction equal to or an ancestor of the target's.
func CanAdminister(actor, target Identity) bool {
	if !actor.Verified {
		return false
	}
	if actor.Address == target.Address {
		return false
	}
	ap, ok := policies[actor.Role]
	if !ok {
		return false
	}
	tp, ok := policies[target.Role]
	if !ok {
		return false
	}
	if ap.rank >= tp.rank || !containsRole(ap.administers, target.Role) {
		return false
	}
	if actor.Jurisdiction.Depth() < ap.minDepth {
		return false
	}
	return actor.Jurisdiction.Covers(target.Jurisdiction)
}

// CanView reports whether viewer may read a production request from a producer in producerJurisdiction.
// Producers see their own requests (checked by the caller); certifying authorities and auditors see requests in scope.
func CanView(viewer Identity, producerJurisdiction Jurisdiction) bool {
	switch viewer.Role {
	case RoleAuditor, RoleTopAdmin, RoleRegionalAdmin:
		return viewer.Verified && viewer.Jurisdiction.Depth() > 0 && viewer.Jurisdiction.Covers(producerJurisdiction)
	default:
		return CanCertify(viewer, producerJurisdiction)
	}
}

// ParseAddress parses a hex wallet address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, NewValidationError(fmt.Sprintf("invalid wallet address %q", s))
	}
	return common.HexToAddress(s), nil
}
