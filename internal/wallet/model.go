package wallet

import (
	"errors"
	"time"
)

const (
	// RoleAvailable is the operative spending wallet; exactly one per user.
	RoleAvailable = "available"
	// RoleDeposit holds incoming funds before they are made spendable.
	RoleDeposit = "deposit"
	// RoleReserved is a custodial side wallet for escrowed holdings.
	RoleReserved = "reserved"

	// StatusActive marks a live wallet.
	StatusActive = "active"
	// StatusDeleted marks a soft-deleted wallet; its rows are retained.
	StatusDeleted = "deleted"
)

// ErrNotFound indicates the wallet does not exist or was soft-deleted.
var ErrNotFound = errors.New("wallet not found")

// Wallet identifies an owner and a role. ParentID links custodial wallets to
// the wallet they escrow for. Wallets are never mutated after creation except
// for soft deletion on account removal.
type Wallet struct {
	ID        string
	OwnerID   string
	Role      string
	ParentID  string
	Status    string
	CreatedAt time.Time
}

func validRole(role string) bool {
	switch role {
	case RoleAvailable, RoleDeposit, RoleReserved:
		return true
	default:
		return false
	}
}
