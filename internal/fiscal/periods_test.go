package fiscal

import "testing"

func TestYTDMonthsCalendarYear(t *testing.T) {
	months, err := YTDMonths(2025, 3, 1)
	if err != nil {
		t.Fatalf("YTDMonths() error = %v", err)
	}
	if len(months) != 3 {
		t.Fatalf("expected 3 months got %d", len(months))
	}
	if months[0] != (Month{2025, 1}) || months[2] != (Month{2025, 3}) {
		t.Fatalf("unexpected window %v", months)
	}
}

func TestYTDMonthsAfterFiscalStart(t *testing.T) {
	months, err := YTDMonths(2025, 6, 4)
	if err != nil {
		t.Fatalf("YTDMonths() error = %v", err)
	}
	want := []Month{{2025, 4}, {2025, 5}, {2025, 6}}
	if len(months) != len(want) {
		t.Fatalf("expected %d months got %d", len(want), len(months))
	}
	for i := range want {
		if months[i] != want[i] {
			t.Fatalf("month %d: want %v got %v", i, want[i], months[i])
		}
	}
}

func TestYTDMonthsSpansYearBoundary(t *testing.T) {
	months, err := YTDMonths(2025, 1, 4)
	if err != nil {
		t.Fatalf("YTDMonths() error = %v", err)
	}
	if len(months) != 10 {
		t.Fatalf("expected 10 months got %d", len(months))
	}
	if months[0] != (Month{2024, 4}) {
		t.Fatalf("expected window to open at 2024-04 got %v", months[0])
	}
	if months[8] != (Month{2024, 12}) {
		t.Fatalf("expected ninth month 2024-12 got %v", months[8])
	}
	if months[9] != (Month{2025, 1}) {
		t.Fatalf("expected window to close at 2025-01 got %v", months[9])
	}
}

func TestYTDMonthsFullFiscalYear(t *testing.T) {
	months, err := YTDMonths(2025, 3, 4)
	if err != nil {
		t.Fatalf("YTDMonths() error = %v", err)
	}
	if len(months) != 12 {
		t.Fatalf("expected 12 months got %d", len(months))
	}
}

func TestYTDMonthsRejectsOutOfRange(t *testing.T) {
	if _, err := YTDMonths(2025, 0, 1); err == nil {
		t.Fatalf("expected error for month 0")
	}
	if _, err := YTDMonths(2025, 13, 1); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if _, err := YTDMonths(2025, 6, 0); err == nil {
		t.Fatalf("expected error for fiscal start 0")
	}
	if _, err := YTDMonths(2025, 6, 13); err == nil {
		t.Fatalf("expected error for fiscal start 13")
	}
}
