package variable

import (
	"fmt"
	"strings"
)

// Category is one label of a variable's value domain.
type Category struct {
	name       string
	code       string
	missing    bool
	attributes Attributes
}

func (c Category) Name() string { return c.name }

// Code is the optional external code of the category.
func (c Category) Code() string { return c.code }

// IsMissing reports whether the category stands for a non-response.
func (c Category) IsMissing() bool { return c.missing }

func (c Category) Attributes() Attributes { return c.attributes }

// CategoryBuilder accumulates the parts of a Category.
type CategoryBuilder struct {
	name       string
	code       string
	missing    bool
	attributes attributeSet
}

// NewCategoryBuilder starts a category named name.
func NewCategoryBuilder(name string) *CategoryBuilder {
	return &CategoryBuilder{name: name}
}

// CategoryFrom starts a builder initialised with the content of c.
func CategoryFrom(c Category) *CategoryBuilder {
	b := &CategoryBuilder{name: c.name, code: c.code, missing: c.missing}
	b.attributes.add(c.attributes...)
	return b
}

func (b *CategoryBuilder) Code(code string) *CategoryBuilder {
	b.code = code
	return b
}

func (b *CategoryBuilder) Missing(missing bool) *CategoryBuilder {
	b.missing = missing
	return b
}

func (b *CategoryBuilder) AddAttribute(attrs ...Attribute) *CategoryBuilder {
	b.attributes.add(attrs...)
	return b
}

// Build validates and freezes the category.
func (b *CategoryBuilder) Build() (Category, error) {
	if strings.TrimSpace(b.name) == "" {
		return Category{}, fmt.Errorf("category name is required: %w", ErrInvalidVariable)
	}
	return Category{
		name:       b.name,
		code:       b.code,
		missing:    b.missing,
		attributes: b.attributes.freeze(),
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *CategoryBuilder) MustBuild() Category {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Equal reports whether both categories carry the same content.
func (c Category) Equal(o Category) bool {
	return c.name == o.name && c.code == o.code && c.missing == o.missing && c.attributes.Equal(o.attributes)
}
