package types

import "time"

// FacetAssignment attaches a ranked facet name to a collection. Per
// collection, Order and FacetName are each meant to be unique.
type FacetAssignment struct {
	FacetID      string    `json:"facet_id" yaml:"facet_id"`
	CollectionID string    `json:"collection_id" yaml:"collection_id" validate:"required"`
	Order        int       `json:"order" yaml:"order"`
	FacetName    string    `json:"facet_name" yaml:"facet_name" validate:"required,max=80"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Validate checks the facet name and owner.
func (f *FacetAssignment) Validate() error {
	return validateEntity(f)
}
