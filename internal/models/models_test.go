package models

import "testing"

func TestTransferValidate(t *testing.T) {
	tests := []struct {
		name     string
		transfer Transfer
		wantErr  bool
	}{
		{"bought negative", Transfer{Kind: TransferBought, PriceDelta: -5_000_000}, false},
		{"bought positive", Transfer{Kind: TransferBought, PriceDelta: 5_000_000}, true},
		{"sold positive", Transfer{Kind: TransferSold, PriceDelta: 3_000_000}, false},
		{"sold negative", Transfer{Kind: TransferSold, PriceDelta: -3_000_000}, true},
		{"unknown zero", Transfer{Kind: TransferUnknown}, false},
		{"unknown nonzero", Transfer{Kind: TransferUnknown, PriceDelta: 1}, true},
		{"invalid kind", Transfer{Kind: TransferKind(42)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.transfer.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Transfer.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNetTransferBalance(t *testing.T) {
	transfers := []Transfer{
		{Kind: TransferBought, PriceDelta: -5_000_000},
		{Kind: TransferSold, PriceDelta: 3_000_000},
		{Kind: TransferUnknown},
	}
	if got := NetTransferBalance(transfers); got != -2_000_000 {
		t.Errorf("NetTransferBalance() = %d, want -2000000", got)
	}
	if got := NetTransferBalance(nil); got != 0 {
		t.Errorf("NetTransferBalance(nil) = %d, want 0", got)
	}
}

func TestRosterSnapshotContains(t *testing.T) {
	r := RosterSnapshot{{PlayerID: "a"}, {PlayerID: "b"}}
	if !r.Contains("a") {
		t.Error("expected roster to contain a")
	}
	if r.Contains("c") {
		t.Error("expected roster not to contain c")
	}
}

func TestRangeValidate(t *testing.T) {
	if err := (BalanceRange{Min: 1, Max: 2}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (BalanceRange{Min: 3, Max: 2}).Validate(); err == nil {
		t.Error("expected error for inverted balance range")
	}
	if err := (BidRange{Min: 3, Max: 2}).Validate(); err == nil {
		t.Error("expected error for inverted bid range")
	}
}

func TestSessionStringHidesToken(t *testing.T) {
	s := NewSession("secret")
	if s.String() == "secret" || !s.Valid() {
		t.Errorf("unexpected session rendering %q", s.String())
	}
	if NewSession("").Valid() {
		t.Error("empty session must not be valid")
	}
}
