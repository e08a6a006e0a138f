package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestExtractedProduct_CompositeKey(t *testing.T) {
	a := &ExtractedProduct{ProductName: "  Gochujang ", Brand: StringPtr("CJ"), UnitSpec: StringPtr("500g")}
	b := &ExtractedProduct{ProductName: "gochujang", Brand: StringPtr(" cj"), UnitSpec: StringPtr("500G ")}
	c := &ExtractedProduct{ProductName: "gochujang", Brand: StringPtr("cj"), UnitSpec: StringPtr("1kg")}

	if a.CompositeKey() != b.CompositeKey() {
		t.Errorf("Expected equal keys, got %q and %q", a.CompositeKey(), b.CompositeKey())
	}
	if a.CompositeKey() == c.CompositeKey() {
		t.Errorf("Expected different keys for different unit specs")
	}

	noBrand := &ExtractedProduct{ProductName: "Gochujang"}
	if noBrand.CompositeKey() != "gochujang||" {
		t.Errorf("Unexpected key for missing optional fields: %q", noBrand.CompositeKey())
	}
}

func TestExtractedProduct_Refresh(t *testing.T) {
	p := &ExtractedProduct{
		ProductName: "Soy Sauce",
		Category:    StringPtr("Sauces & Condiments"),
		UnitPrice:   StringPtr("12.50"),
		Currency:    StringPtr("USD"),
		PriceBasis:  StringPtr("case"),
	}
	p.Refresh()

	if p.FormattedPrice != "USD 12.50 / case" {
		t.Errorf("Expected formatted price 'USD 12.50 / case', got %q", p.FormattedPrice)
	}
	if p.CategoryIcon != "sauce" {
		t.Errorf("Expected icon 'sauce', got %q", p.CategoryIcon)
	}

	p.UnitPrice = nil
	p.Refresh()
	if p.FormattedPrice != "-" {
		t.Errorf("Expected '-' without a price, got %q", p.FormattedPrice)
	}
}

func TestCategoryIconKey(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"", "default"},
		{"Frozen Dumplings", "frozen"},
		{"Instant Noodles", "grain"},
		{"Green Tea", "beverage"},
		{"Rice Crackers", "grain"},
		{"Seafood", "protein"},
		{"Household", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			if got := CategoryIconKey(tt.category); got != tt.want {
				t.Errorf("CategoryIconKey(%q) = %q, want %q", tt.category, got, tt.want)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$10.00", 10, true},
		{"KRW 12,500", 12500, true},
		{"3,50 EUR", 3.5, true},
		{"1,234.56", 1234.56, true},
		{"call for price", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJobStage_ProgressStep(t *testing.T) {
	tests := []struct {
		stage    JobStage
		want     int
		wantOK   bool
		terminal bool
	}{
		{JobStageUploading, 0, true, false},
		{JobStageParsing, 1, true, false},
		{JobStageExtracting, 2, true, false},
		{JobStageValidating, 3, true, false},
		{JobStageComplete, 4, true, true},
		{JobStageError, 0, false, true},
		{JobStage("queued"), 0, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			step, ok := tt.stage.ProgressStep()
			if ok != tt.wantOK || step != tt.want {
				t.Errorf("ProgressStep() = (%d, %v), want (%d, %v)", step, ok, tt.want, tt.wantOK)
			}
			if tt.stage.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", tt.stage.IsTerminal(), tt.terminal)
			}
		})
	}
}

func TestDocument_FileType(t *testing.T) {
	tests := map[string]string{
		"catalog.PDF":     "pdf",
		"price.list.xlsx": "xlsx",
		"noext":           "",
		"trailing.":       "",
	}
	for name, want := range tests {
		if got := (Document{FileName: name}).FileType(); got != want {
			t.Errorf("FileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in   string
		want WorkflowStep
		ok   bool
	}{
		{"1", StepUpload, true},
		{"Review", StepReview, true},
		{" complete ", StepComplete, true},
		{"4", 0, false},
		{"pricing", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseStep(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStep(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ValidationError("bad file", nil))
	if !IsType(err, ErrorTypeValidation) {
		t.Error("Expected wrapped validation error to match")
	}
	if IsType(err, ErrorTypeAPI) {
		t.Error("Expected validation error not to match api type")
	}
	if IsType(errors.New("plain"), ErrorTypeValidation) {
		t.Error("Expected plain error not to match")
	}
}
