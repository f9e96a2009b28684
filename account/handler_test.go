package account

import (
	"path/filepath"
	"testing"

	"vaultd.dev/vault/types"
)

func pmid(b byte) types.Pmid {
	var p types.Pmid
	p[0] = b
	return p
}

func TestAddAccountThenExistsFails(t *testing.T) {
	h := NewHandler()
	p := pmid(1)
	if err := h.AddAccount(p, 1000); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.AddAccount(p, 1000); types.CodeOf(err) != types.ErrAccountExists {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestGetUnknownAccountFails(t *testing.T) {
	h := NewHandler()
	if _, _, _, err := h.Get(pmid(2)); types.CodeOf(err) != types.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAmendSpaceGivenIncDec(t *testing.T) {
	h := NewHandler()
	p := pmid(3)
	if err := h.AddAccount(p, 1000); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.Amend(p, FieldSpaceGiven, 400, true); err != nil {
		t.Fatalf("inc: %v", err)
	}
	if _, given, _, _ := h.Get(p); given != 400 {
		t.Fatalf("expected given=400, got %d", given)
	}
	if err := h.Amend(p, FieldSpaceGiven, 100, false); err != nil {
		t.Fatalf("dec: %v", err)
	}
	if _, given, _, _ := h.Get(p); given != 300 {
		t.Fatalf("expected given=300, got %d", given)
	}
}

func TestAmendSpaceGivenRejectsOverOffer(t *testing.T) {
	h := NewHandler()
	p := pmid(4)
	_ = h.AddAccount(p, 100)
	if err := h.Amend(p, FieldSpaceGiven, 200, true); types.CodeOf(err) != types.ErrAccountNotEnoughSpace {
		t.Fatalf("expected ErrAccountNotEnoughSpace, got %v", err)
	}
}

func TestAmendSpaceGivenRejectsUnderflow(t *testing.T) {
	h := NewHandler()
	p := pmid(5)
	_ = h.AddAccount(p, 100)
	if err := h.Amend(p, FieldSpaceGiven, 50, false); types.CodeOf(err) != types.ErrAccountNotEnoughSpace {
		t.Fatalf("expected ErrAccountNotEnoughSpace on underflow, got %v", err)
	}
}

func TestAmendSpaceOfferedSetRejectsBelowGivenOrTaken(t *testing.T) {
	h := NewHandler()
	p := pmid(6)
	_ = h.AddAccount(p, 1000)
	_ = h.Amend(p, FieldSpaceGiven, 500, true)
	if err := h.Amend(p, FieldSpaceOffered, 400, false); types.CodeOf(err) != types.ErrAccountNotEnoughSpace {
		t.Fatalf("expected ErrAccountNotEnoughSpace, got %v", err)
	}
	if err := h.Amend(p, FieldSpaceOffered, 600, false); err != nil {
		t.Fatalf("expected valid offered decrease, got %v", err)
	}
}

func TestAlertsClearOnRead(t *testing.T) {
	h := NewHandler()
	p := pmid(7)
	_ = h.AddAccount(p, 100)
	_ = h.AddAlert(p, "low on space")
	_ = h.AddAlert(p, "second alert")

	alerts, err := h.GetAlerts(p)
	if err != nil {
		t.Fatalf("get alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	alerts2, err := h.GetAlerts(p)
	if err != nil {
		t.Fatalf("get alerts again: %v", err)
	}
	if len(alerts2) != 0 {
		t.Fatalf("expected alerts to clear on read, got %d", len(alerts2))
	}
}

func TestAddDeleteAddRoundTripIsIndistinguishable(t *testing.T) {
	h := NewHandler()
	p := pmid(8)
	if err := h.AddAccount(p, 500); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.DeleteAccount(p); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := h.AddAccount(p, 500); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	offered, given, taken, err := h.Get(p)
	if err != nil || offered != 500 || given != 0 || taken != 0 {
		t.Fatalf("expected fresh account state, got offered=%d given=%d taken=%d err=%v", offered, given, taken, err)
	}
}

func TestPersistentStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "accounts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	h := NewHandler()
	p := pmid(9)
	_ = h.AddAccount(p, 1000)
	_ = h.Amend(p, FieldSpaceGiven, 200, true)
	_ = h.AddAlert(p, "persisted alert")

	if err := store.Save(h); err != nil {
		t.Fatalf("save: %v", err)
	}

	h2 := NewHandler()
	if err := store.Load(h2); err != nil {
		t.Fatalf("load: %v", err)
	}
	offered, given, taken, err := h2.Get(p)
	if err != nil {
		t.Fatalf("get after load: %v", err)
	}
	if offered != 1000 || given != 200 || taken != 0 {
		t.Fatalf("unexpected state after load: offered=%d given=%d taken=%d", offered, given, taken)
	}
	alerts, err := h2.GetAlerts(p)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("expected 1 persisted alert, got %v err=%v", alerts, err)
	}
}
