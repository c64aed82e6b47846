package product

// Product is the display-ready form of a catalog entry.
type Product struct {
	ID           string
	DisplayName  string
	DisplayPrice string
}

// IsValid reports whether every field is populated. Invalid products are
// never handed to the host application.
func (p *Product) IsValid() bool {
	return p != nil && p.ID != "" && p.DisplayName != "" && p.DisplayPrice != ""
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	return &Product{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		DisplayPrice: p.DisplayPrice,
	}
}

func SliceClone(products []*Product) []*Product {
	cloned := make([]*Product, len(products))
	for i, p := range products {
		cloned[i] = p.Clone()
	}
	return cloned
}
