package extract

import (
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

// FallbackProducts returns the fixed demonstration catalog substituted when
// extraction fails and fallback is enabled. Each call returns fresh copies.
func FallbackProducts() []*domain.ExtractedProduct {
	s := domain.StringPtr
	products := []*domain.ExtractedProduct{
		{
			ID: "demo-1", ProductName: "Extra Virgin Olive Oil", Brand: s("Bella Terra"),
			UnitSpec: s("500ml x 12"), Category: s("Oils & Sauces"),
			UnitPrice: s("8.50"), CasePrice: s("96.00"), Currency: s("USD"), PriceBasis: s("bottle"),
			ShelfLife: s("24 months"), Certifications: []string{"Organic", "PDO"},
		},
		{
			ID: "demo-2", ProductName: "Aged Parmigiano Reggiano", Brand: s("Caseificio Rossi"),
			UnitSpec: s("1kg wedge"), Category: s("Dairy & Cheese"),
			UnitPrice: s("24.00"), CasePrice: s("230.00"), Currency: s("USD"), PriceBasis: s("kg"),
			ShelfLife: s("12 months"), Certifications: []string{"PDO"},
		},
		{
			ID: "demo-3", ProductName: "Frozen Pork Dumplings", Brand: s("Golden Harvest"),
			UnitSpec: s("1kg x 10"), Category: s("Frozen Foods"),
			UnitPrice: s("6.20"), CasePrice: s("58.00"), Currency: s("USD"), PriceBasis: s("bag"),
			ShelfLife: s("18 months"), Certifications: []string{"HACCP"},
		},
		{
			ID: "demo-4", ProductName: "Jasmine Rice", Brand: s("Royal Thai"),
			UnitSpec: s("20kg"), Category: s("Grains & Rice"),
			UnitPrice: s("32.00"), Currency: s("USD"), PriceBasis: s("sack"),
			ShelfLife: s("24 months"), Certifications: []string{},
		},
		{
			ID: "demo-5", ProductName: "Sparkling Mineral Water", Brand: s("Alpine Springs"),
			UnitSpec: s("330ml x 24"), Category: s("Beverages"),
			UnitPrice: s("0.90"), CasePrice: s("19.50"), Currency: s("USD"), PriceBasis: s("can"),
			ShelfLife: s("12 months"), Certifications: []string{},
		},
		{
			ID: "demo-6", ProductName: "Sea Salt Potato Chips", Brand: s("Crunchy Co."),
			UnitSpec: s("150g x 20"), Category: s("Snacks"),
			UnitPrice: s("2.10"), CasePrice: s("38.00"), Currency: s("USD"), PriceBasis: s("pack"),
			ShelfLife: s("9 months"), Certifications: []string{"Non-GMO"},
		},
	}

	for _, p := range products {
		p.Refresh()
	}
	return products
}
