package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
)

// PathSeparator is reserved for collection paths and may not appear in names.
const PathSeparator = "/"

// HostedQueryPrefix marks a query that is evaluated by an external host.
// Collections with such queries never contribute to record membership.
const HostedQueryPrefix = "hostedcollection:"

// Kind distinguishes plain collections from reference collections.
type Kind int

const (
	// KindPlain collections own the subtree under their tree positions.
	KindPlain Kind = iota
	// KindReference collections stand in for the collection they point at.
	KindReference
)

func (k Kind) String() string {
	if k == KindReference {
		return "reference"
	}
	return "plain"
}

// Collection is a named grouping of documents. Its place in the catalog is
// recorded by one or more TreeNode positions.
type Collection struct {
	CollectionID string    `json:"collection_id" yaml:"collection_id"`
	Name         string    `json:"name" yaml:"name" validate:"required,max=255,excludes=/"`
	Slug         string    `json:"slug" yaml:"slug"`
	Query        *string   `json:"query,omitempty" yaml:"query,omitempty"`
	ReferenceID  *string   `json:"reference_id,omitempty" yaml:"reference_id,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Kind reports whether the collection is a reference.
func (c *Collection) Kind() Kind {
	if c.ReferenceID != nil && *c.ReferenceID != "" {
		return KindReference
	}
	return KindPlain
}

// HasQuery reports whether the collection carries a non-empty query.
func (c *Collection) HasQuery() bool {
	return c.Query != nil && *c.Query != ""
}

// IsHosted reports whether the collection's query is evaluated externally.
func (c *Collection) IsHosted() bool {
	return c.HasQuery() && strings.HasPrefix(*c.Query, HostedQueryPrefix)
}

// Validate checks the name and the reference, then derives Slug.
func (c *Collection) Validate() error {
	s, err := Slugify(c.Name)
	if err != nil {
		return err
	}
	if c.Kind() == KindReference && c.CollectionID != "" && *c.ReferenceID == c.CollectionID {
		return fmt.Errorf("%w: collection references itself", ErrChainedReference)
	}
	c.Slug = s
	return nil
}

var entityValidate = validator.New()

// validateEntity runs struct-tag validation and folds failures into
// ErrInvalidName, which is the only field-level error callers see.
func validateEntity(v any) error {
	err := entityValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s fails %q", ErrInvalidName, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidName, err)
}

// ValidateName rejects empty names, names over 255 characters, and names that
// contain PathSeparator.
func ValidateName(name string) error {
	return validateEntity(&Collection{Name: name})
}

// Slugify validates name and returns its URL-safe slug.
func Slugify(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	s := slug.Make(name)
	if s == "" {
		return "", fmt.Errorf("%w: %q has no URL-safe characters", ErrInvalidName, name)
	}
	return s, nil
}
