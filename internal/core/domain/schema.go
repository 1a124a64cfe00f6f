package domain

import (
	"bytes"
	"encoding/json"
)

// CollectionTypeCollection is the listCollections type of a regular collection.
// Views and timeseries buckets report other types and never carry validators.
const CollectionTypeCollection = "collection"

// CollectionDescriptor is the part of a listCollections entry the loader needs.
type CollectionDescriptor struct {
	Type string
	Name string
	// JSONSchema is options.validator.$jsonSchema rendered as JSON, nil when absent.
	JSONSchema json.RawMessage
}

// HasSchema reports whether the descriptor is a collection with a non-empty
// $jsonSchema validator.
func (d CollectionDescriptor) HasSchema() bool {
	if d.Type != CollectionTypeCollection {
		return false
	}
	trimmed := bytes.TrimSpace(d.JSONSchema)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return false
	}
	return len(doc) > 0
}

// SchemaRef addresses a registered schema, or a subschema of one, by
// reference: "users" or "users#/properties/address".
type SchemaRef struct {
	Ref string `json:"$ref"`
}
