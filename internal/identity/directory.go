package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Directory is the read side used by the authorization checks.
type Directory interface {
	Lookup(ctx context.Context, address common.Address) (Identity, error)
}

// Store is a Directory that can also register identities and change their verification flag.
type Store interface {
	Directory
	Create(ctx context.Context, identity Identity) (Identity, error)
	SetVerified(ctx context.Context, address common.Address, verified bool) (Identity, error)
}

// DatabaseDirectory is the Postgres-backed Store.
type DatabaseDirectory struct {
	queries *database.Queries
}

func NewDatabaseDirectory(queries *database.Queries) *DatabaseDirectory {
	return &DatabaseDirectory{queries: queries}
}

func (d *DatabaseDirectory) Lookup(ctx context.Context, address common.Address) (Identity, error) {
	row, err := d.queries.GetIdentity(ctx, address.Hex())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NewNotFoundError(fmt.Sprintf("no identity registered for %s", address.Hex()))
		}
		return Identity{}, WrapInternalError(err, "failed to get identity")
	}
	return fromRow(row), nil
}

func (d *DatabaseDirectory) Create(ctx context.Context, identity Identity) (Identity, error) {
	if err := identity.Validate(); err != nil {
		return Identity{}, err
	}
	row, err := d.queries.CreateIdentity(ctx, database.CreateIdentityParams{
		WalletAddress: identity.Address.Hex(),
		Role:          string(identity.Role),
		Country:       identity.Jurisdiction.Country,
		State:         identity.Jurisdiction.State,
		City:          identity.Jurisdiction.City,
		Verified:      identity.Verified,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, NewConflictError(fmt.Sprintf("identity %s is already registered", identity.Address.Hex()))
		}
		return Identity{}, WrapInternalError(err, "failed to create identity")
	}
	return fromRow(row), nil
}

func (d *DatabaseDirectory) SetVerified(ctx context.Context, address common.Address, verified bool) (Identity, error) {
	row, err := d.queries.UpdateIdentityVerification(ctx, database.UpdateIdentityVerificationParams{
		WalletAddress: address.Hex(),
		Verified:      verified,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NewNotFoundError(fmt.Sprintf("no identity registered for %s", address.Hex()))
		}
		return Identity{}, WrapInternalError(err, "failed to update identity verification")
	}
	return fromRow(row), nil
}

func fromRow(row database.Identity) Identity {
	return Identity{
		Address: common.HexToAddress(row.WalletAddress),
		Role:    Role(row.Role),
		Jurisdiction: Jurisdiction{
			Country: row.Country,
			State:   row.State,
			City:    row.City,
		},
		Verified: row.Verified,
	}
}

// MemoryDirectory is an in-process Store used by tests and the simulator setup.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities map[common.Address]Identity
}

func NewMemoryDirectory(identities ...Identity) *MemoryDirectory {
	d := &MemoryDirectory{identities: make(map[common.Address]Identity, len(identities))}
	for _, i := range identities {
		d.identities[i.Address] = i
	}
	return d
}

func (d *MemoryDirectory) Lookup(_ context.Context, address common.Address) (Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.identities[address]
	if !ok {
		return Identity{}, NewNotFoundError(fmt.Sprintf("no identity registered for %s", address.Hex()))
	}
	return i, nil
}

func (d *MemoryDirectory) Create(_ context.Context, identity Identity) (Identity, error) {
	if err := identity.Validate(); err != nil {
		return Identity{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.identities[identity.Address]; exists {
		return Identity{}, NewConflictError(fmt.Sprintf("identity %s is already registered", identity.Address.Hex()))
	}
	d.identities[identity.Address] = identity
	return identity, nil
}

func (d *MemoryDirectory) SetVerified(_ context.Context, address common.Address, verified bool) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.identities[address]
	if !ok {
		return Identity{}, NewNotFoundError(fmt.Sprintf("no identity registered for %s", address.Hex()))
	}
	i.Verified = verified
	d.identities[address] = i
	return i, nil
}
