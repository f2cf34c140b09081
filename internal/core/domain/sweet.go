package domain

import "time"

type Category string

const (
	CategoryChocolate Category = "chocolate"
	CategoryCandy     Category = "candy"
	CategoryPastry    Category = "pastry"
	CategoryGummy     Category = "gummy"
	CategoryCaramel   Category = "caramel"
)

// Categories lists every valid sweet category.
var Categories = []Category{
	CategoryChocolate,
	CategoryCandy,
	CategoryPastry,
	CategoryGummy,
	CategoryCaramel,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Sweet is a catalog item. InStock is derived from Quantity and is
// recomputed in the same atomic step as every quantity change.
type Sweet struct {
	ID          string
	Name        string
	Category    Category
	Price       float64
	Quantity    int
	InStock     bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
