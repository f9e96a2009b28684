// Package account implements the per-PMID credit ledger of spec §4.3: an
// in-memory map of accounts guarded by a single mutex, with add/delete/
// amend/query operations and the invariants of §3.2.
package account

import (
	"sync"

	"vaultd.dev/vault/types"
)

// Field identifies which of the three tracked quantities an amendment
// targets.
type Field int

const (
	FieldSpaceOffered Field = iota + 1
	FieldSpaceGiven
	FieldSpaceTaken
)

// Account is one PMID's ledger row (§3.2).
type Account struct {
	Pmid         types.Pmid
	SpaceOffered uint64
	SpaceGiven   uint64
	SpaceTaken   uint64
	Alerts       []string
}

func (a Account) clone() Account {
	out := a
	out.Alerts = append([]string(nil), a.Alerts...)
	return out
}

// Handler is the mutex-guarded account set (§5: "AccountHandler: one
// mutex guards the entire account set").
type Handler struct {
	mu       sync.Mutex
	accounts map[types.Pmid]Account
}

func NewHandler() *Handler {
	return &Handler{accounts: make(map[types.Pmid]Account)}
}

// AddAccount creates an account self-signed by its owner. Fails with
// ErrAccountExists if pmid already has an account.
func (h *Handler) AddAccount(pmid types.Pmid, offered uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accounts[pmid]; ok {
		return types.NewError(types.ErrAccountExists, "account already exists")
	}
	h.accounts[pmid] = Account{Pmid: pmid, SpaceOffered: offered}
	return nil
}

// DeleteAccount removes pmid's account.
func (h *Handler) DeleteAccount(pmid types.Pmid) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accounts[pmid]; !ok {
		return types.NewError(types.ErrAccountNotFound, "account not found")
	}
	delete(h.accounts, pmid)
	if _, ok := h.accounts[pmid]; ok {
		return types.NewError(types.ErrAccountDeleteFailed, "delete failed")
	}
	return nil
}

// Amend applies one field update (§4.3 "Amend semantics"):
//
//   - SpaceOffered: increase=false means "set to amount"; rejected if the
//     new value would fall below current given or taken.
//   - SpaceGiven/SpaceTaken: an increase exceeding offered, or a decrease
//     underflowing the current value, fails with ErrAccountNotEnoughSpace.
func (h *Handler) Amend(pmid types.Pmid, field Field, amount uint64, increase bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.accounts[pmid]
	if !ok {
		return types.NewError(types.ErrAccountNotFound, "account not found")
	}

	switch field {
	case FieldSpaceOffered:
		if increase {
			a.SpaceOffered += amount
		} else {
			if amount < a.SpaceGiven || amount < a.SpaceTaken {
				return types.NewError(types.ErrAccountNotEnoughSpace, "offered cannot drop below given/taken")
			}
			a.SpaceOffered = amount
		}
	case FieldSpaceGiven:
		if increase {
			if amount+a.SpaceGiven > a.SpaceOffered {
				return types.NewError(types.ErrAccountNotEnoughSpace, "given would exceed offered")
			}
			a.SpaceGiven += amount
		} else {
			if amount > a.SpaceGiven {
				return types.NewError(types.ErrAccountNotEnoughSpace, "given would underflow")
			}
			a.SpaceGiven -= amount
		}
	case FieldSpaceTaken:
		if increase {
			if amount+a.SpaceTaken > a.SpaceOffered {
				return types.NewError(types.ErrAccountNotEnoughSpace, "taken would exceed offered")
			}
			a.SpaceTaken += amount
		} else {
			if amount > a.SpaceTaken {
				return types.NewError(types.ErrAccountNotEnoughSpace, "taken would underflow")
			}
			a.SpaceTaken -= amount
		}
	default:
		return types.NewError(types.ErrAccountWrongField, "unknown amendment field")
	}

	h.accounts[pmid] = a
	return nil
}

// Get returns the offered/given/taken triple for pmid.
func (h *Handler) Get(pmid types.Pmid) (offered, given, taken uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.accounts[pmid]
	if !ok {
		return 0, 0, 0, types.NewError(types.ErrAccountNotFound, "account not found")
	}
	return a.SpaceOffered, a.SpaceGiven, a.SpaceTaken, nil
}

// AddAlert appends a free-text alert to pmid's account.
func (h *Handler) AddAlert(pmid types.Pmid, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.accounts[pmid]
	if !ok {
		return types.NewError(types.ErrAccountNotFound, "account not found")
	}
	a.Alerts = append(a.Alerts, text)
	h.accounts[pmid] = a
	return nil
}

// GetAlerts returns and clears pmid's pending alerts.
func (h *Handler) GetAlerts(pmid types.Pmid) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.accounts[pmid]
	if !ok {
		return nil, types.NewError(types.ErrAccountNotFound, "account not found")
	}
	alerts := a.Alerts
	a.Alerts = nil
	h.accounts[pmid] = a
	return alerts, nil
}

// Snapshot returns a defensive copy of every account, for serialisation
// into a startup-sync payload (§4.9).
func (h *Handler) Snapshot() []Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Account, 0, len(h.accounts))
	for _, a := range h.accounts {
		out = append(out, a.clone())
	}
	return out
}

// Restore replaces the entire account set, used when applying a
// deserialised AccountSet from GetSyncData (§4.9).
func (h *Handler) Restore(accounts []Account) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts = make(map[types.Pmid]Account, len(accounts))
	for _, a := range accounts {
		h.accounts[a.Pmid] = a.clone()
	}
}
