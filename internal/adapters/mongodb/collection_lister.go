package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

// CollectionLister reads collection descriptors with listCollections. The
// database handle is borrowed, never closed here.
type CollectionLister struct {
	db *mongo.Database
}

func NewCollectionLister(db *mongo.Database) *CollectionLister {
	return &CollectionLister{db: db}
}

// ListCollections returns every entry of listCollections, draining the cursor
// past the first batch. Driver errors are returned unchanged.
func (l *CollectionLister) ListCollections(ctx context.Context) ([]domain.CollectionDescriptor, error) {
	specs, err := l.db.ListCollectionSpecifications(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	out := make([]domain.CollectionDescriptor, 0, len(specs))
	for _, spec := range specs {
		desc := domain.CollectionDescriptor{Type: spec.Type, Name: spec.Name}
		schema, err := jsonSchemaOption(spec.Options)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", spec.Name, err)
		}
		desc.JSONSchema = schema
		out = append(out, desc)
	}
	return out, nil
}

// jsonSchemaOption extracts options.validator.$jsonSchema as relaxed extended
// JSON, so int32 and int64 literals become plain JSON numbers.
func jsonSchemaOption(opts bson.Raw) ([]byte, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	doc, ok := opts.Lookup("validator", "$jsonSchema").DocumentOK()
	if !ok {
		return nil, nil
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("encode $jsonSchema: %w", err)
	}
	return data, nil
}
