package config

import "testing"

func TestNormalizePeers(t *testing.T) {
	got := NormalizePeers("127.0.0.1:7700, 127.0.0.1:7701", "127.0.0.1:7700", " ", "10.0.0.1:7700")
	want := []string{"127.0.0.1:7700", "127.0.0.1:7701", "10.0.0.1:7700"}
	if len(got) != len(want) {
		t.Fatalf("len=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d got=%q want=%q", i, got[i], want[i])
		}
	}
}

func TestValidateOK(t *testing.T) {
	cfg := Default()
	cfg.Peers = []string{"127.0.0.1:7700"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadBind(t *testing.T) {
	cfg := Default()
	cfg.BindAddr = "127.0.0.1"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateRejectsBadPeer(t *testing.T) {
	cfg := Default()
	cfg.Peers = []string{"bad-peer"}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateRejectsThresholdBelowMajority(t *testing.T) {
	cfg := Default()
	cfg.K = 4
	cfg.KadUpperThreshold = 2 // must be > k/2 = 2, so 2 is rejected
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for threshold not exceeding k/2")
	}
}

func TestValidateRejectsThresholdAboveK(t *testing.T) {
	cfg := Default()
	cfg.K = 4
	cfg.KadUpperThreshold = 5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for threshold above k")
	}
}

func TestValidateAcceptsDefaultQuorum(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected default k/threshold to validate, got %v", err)
	}
}
