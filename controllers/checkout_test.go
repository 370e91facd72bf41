package controllers

import (
	"testing"

	"chowdash/models"
)

func TestComputeCharges(t *testing.T) {
	charges := models.Charges{
		DeliveryCharge: 300,
		PackCharge:     200,
		FeePermille:    15,
	}

	cases := []struct {
		name      string
		itemTotal int64
		wantFee   int64
		wantTotal int64
	}{
		// fee = 1.5% of item total plus fixed charges, rounded half up
		{"round down", 1000, 23, 1523},  // 1500 * 0.015 = 22.5 -> 23
		{"exact", 2500, 45, 3045},       // 3000 * 0.015 = 45
		{"small order", 100, 9, 609},    // 600 * 0.015 = 9
		{"large order", 10000, 158, 10658}, // 10500 * 0.015 = 157.5 -> 158
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			delivery, pack, fee, total := computeCharges(c.itemTotal, charges)
			if delivery != 300 || pack != 200 {
				t.Fatalf("fixed charges = %d/%d, want 300/200", delivery, pack)
			}
			if fee != c.wantFee {
				t.Errorf("fee = %d, want %d", fee, c.wantFee)
			}
			if total != c.wantTotal {
				t.Errorf("total = %d, want %d", total, c.wantTotal)
			}
		})
	}
}

func TestComputeChargesZeroFee(t *testing.T) {
	charges := models.Charges{DeliveryCharge: 300, PackCharge: 200}
	_, _, fee, total := computeCharges(1000, charges)
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
	if total != 1500 {
		t.Errorf("total = %d, want 1500", total)
	}
}
