package service

import (
	"strings"
	"testing"
)

func TestDeriveInvoice(t *testing.T) {
	// 200kg × 30% DRC × 150 = 60kg干胶，金额9000
	dryKg, amount := DeriveInvoice(200, 30, 150)
	if dryKg != 60 {
		t.Fatalf("expected dryKg 60, got %v", dryKg)
	}
	if amount != 9000 {
		t.Fatalf("expected amount 9000, got %v", amount)
	}
}

func TestDeriveInvoiceRoundsHalfUp(t *testing.T) {
	// 干胶 33.333kg ≈ 33.33，金额 33.33×100.5 = 3349.665 → 3350
	dryKg, amount := DeriveInvoice(111.11, 30, 100.5)
	if dryKg != 33.33 {
		t.Fatalf("expected dryKg 33.33, got %v", dryKg)
	}
	if amount != 3350 {
		t.Fatalf("expected amount 3350, got %v", amount)
	}

	// .5 边界进位
	_, amount2 := DeriveInvoice(1, 50, 25)
	// dryKg 0.5 × 25 = 12.5 → 13
	if amount2 != 13 {
		t.Fatalf("expected amount 13, got %v", amount2)
	}
}

func TestInvoiceNumber(t *testing.T) {
	id := "a1b2c3d4e5f6g7h8i9j0klmnopqrstuv"
	no := InvoiceNumber(id)
	if !strings.HasPrefix(no, "INV-") {
		t.Fatalf("expected INV- prefix, got %s", no)
	}
	if no != "INV-"+strings.ToUpper(id[len(id)-8:]) {
		t.Fatalf("expected suffix from last 8 chars of id, got %s", no)
	}
	if len(no) != 12 {
		t.Fatalf("expected length 12, got %d (%s)", len(no), no)
	}
}

func TestRound2(t *testing.T) {
	if v := Round2(25.004999); v != 25.0 {
		t.Fatalf("expected 25.0, got %v", v)
	}
	if v := Round2(24.996); v != 25.0 {
		t.Fatalf("expected 25.0, got %v", v)
	}
}
