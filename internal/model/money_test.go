package model

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
		wantErr  bool
	}{
		{"whole number", "99.00", "USD", "99.00 USD", false},
		{"with cents", "123.45", "EUR", "123.45 EUR", false},
		{"empty amount is zero", "", "USD", "0.00 USD", false},
		{"no decimals", "1200", "JPY", "1200.00 JPY", false},
		{"invalid amount", "abc", "USD", "", true},
		{"invalid currency", "1.00", "ZZZ1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.amount, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMoney(%q, %q) expected error", tt.amount, tt.currency)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney(%q, %q) error: %v", tt.amount, tt.currency, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseMoney(%q, %q) = %s, want %s", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestMoney_MulAndAdd(t *testing.T) {
	unit := MustMoney("19.99", "USD")

	if got := unit.Mul(2); !got.Equal(MustMoney("39.98", "USD")) {
		t.Errorf("Mul(2) = %s, want 39.98 USD", got)
	}
	if got := unit.Add(MustMoney("0.01", "USD")); !got.Equal(MustMoney("20.00", "USD")) {
		t.Errorf("Add = %s, want 20.00 USD", got)
	}
	if !MustMoney("0", "USD").IsZero() {
		t.Error("zero amount should be IsZero")
	}
}

func TestMoney_JSON(t *testing.T) {
	m := MustMoney("10.50", "CAD")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"amount":"10.5","currencyCode":"CAD"}` {
		t.Errorf("Marshal = %s", data)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(m) {
		t.Errorf("round trip = %s, want %s", back, m)
	}
}

func TestCart_CloneIsDeep(t *testing.T) {
	tax := MustMoney("1.00", "USD")
	c := &Cart{
		Handle: "h1",
		Lines:  []CartLine{{LineID: "l1", Quantity: 1}},
		Totals: CartTotals{Tax: &tax},
	}

	cp := c.Clone()
	cp.Lines[0].Quantity = 5
	cp.Totals.Tax.Amount = cp.Totals.Tax.Amount.Add(cp.Totals.Tax.Amount)

	if c.Lines[0].Quantity != 1 {
		t.Error("Clone shares the Lines backing array")
	}
	if !c.Totals.Tax.Equal(tax) {
		t.Error("Clone shares the Tax pointer")
	}
	if (*Cart)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
