package ports

import (
	"context"
	"encoding/json"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

// CollectionLister reads collection metadata from the target database.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]domain.CollectionDescriptor, error)
}

// SchemaEngine compiles named schemas and checks documents against them.
type SchemaEngine interface {
	AddSchema(name string, schema json.RawMessage) error
	// Check validates document against the schema registered under name,
	// or against the subschema at pointer when pointer is not empty.
	Check(name, pointer string, document any) ([]domain.ErrorDetail, error)
	ErrorsText(errs []domain.ErrorDetail) string
	Schema(name string) (json.RawMessage, bool)
}
