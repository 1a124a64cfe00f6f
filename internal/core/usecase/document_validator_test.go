package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/schemaengine"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

const peopleSchema = `{
	"bsonType": "object",
	"required": ["name", "year"],
	"properties": {
		"name": {"bsonType": "string"},
		"year": {"bsonType": "int", "minimum": 2017, "maximum": 3017}
	}
}`

type stubLister struct {
	descriptors []domain.CollectionDescriptor
	err         error
	calls       int
}

func (s *stubLister) ListCollections(context.Context) ([]domain.CollectionDescriptor, error) {
	s.calls++
	return s.descriptors, s.err
}

type stubEngine struct {
	added  []string
	addErr error
}

func (s *stubEngine) AddSchema(name string, _ json.RawMessage) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, name)
	return nil
}

func (s *stubEngine) Check(string, string, any) ([]domain.ErrorDetail, error) { return nil, nil }

func (s *stubEngine) ErrorsText([]domain.ErrorDetail) string { return "No errors" }

func (s *stubEngine) Schema(string) (json.RawMessage, bool) { return nil, false }

func peopleLister() *stubLister {
	return &stubLister{descriptors: []domain.CollectionDescriptor{
		{Type: "collection", Name: "people", JSONSchema: json.RawMessage(peopleSchema)},
		{Type: "collection", Name: "logs"},
		{Type: "view", Name: "people_view", JSONSchema: json.RawMessage(`{"required":["x"]}`)},
	}}
}

func TestDocumentValidatorRegistersOnlySchemaBearingCollections(t *testing.T) {
	engine := &stubEngine{}
	v := NewDocumentValidator(peopleLister(), engine)

	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !reflect.DeepEqual(engine.added, []string{"people"}) {
		t.Fatalf("unexpected registered schemas: %v", engine.added)
	}
	if !reflect.DeepEqual(v.Collections(), []string{"people"}) {
		t.Fatalf("unexpected collections: %v", v.Collections())
	}
}

func TestDocumentValidatorRequiresInitialization(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New())

	if _, err := v.Validate("people", map[string]any{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := v.Validate("", nil); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized for any arguments, got %v", err)
	}
	if _, err := v.ValidateRef(domain.SchemaRef{Ref: "people"}, map[string]any{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := v.Schema("people"); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if v.Collections() != nil {
		t.Fatal("expected no collections before initialization")
	}
}

func TestDocumentValidatorValidatesMissingRequiredField(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := v.Validate("people", map[string]any{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := domain.ValidationResult{
		Valid: false,
		Errors: []domain.ErrorDetail{{
			Keyword:    "required",
			DataPath:   "",
			SchemaPath: "#/required",
			Params:     map[string]any{"missingProperty": "name"},
			Message:    "should have required property 'name'",
		}},
		ErrorsText: "data should have required property 'name'",
	}
	if !reflect.DeepEqual(result, want) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDocumentValidatorWithAllErrorsEngine(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New(schemaengine.WithAllErrors()))
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := v.Validate("people", map[string]any{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid || len(result.Errors) != 2 {
		t.Fatalf("expected two violations, got %+v", result)
	}
	want := "data should have required property 'name', data should have required property 'year'"
	if result.ErrorsText != want {
		t.Fatalf("unexpected errors text: %q", result.ErrorsText)
	}
}

func TestDocumentValidatorValidDocument(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := v.Validate("people", map[string]any{"name": "Ada", "year": 2017})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid || len(result.Errors) != 0 {
		t.Fatalf("expected valid result, got %+v", result)
	}
}

func TestDocumentValidatorValidateRef(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := v.ValidateRef(domain.SchemaRef{Ref: "people#/properties/year"}, 1990)
	if err != nil {
		t.Fatalf("validate ref: %v", err)
	}
	if result.Valid || len(result.Errors) != 1 || result.Errors[0].Keyword != "minimum" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDocumentValidatorNoSchemasFailsAtEngineLayer(t *testing.T) {
	v := NewDocumentValidator(&stubLister{descriptors: []domain.CollectionDescriptor{{Type: "collection", Name: "logs"}}}, schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(v.Collections()) != 0 {
		t.Fatalf("expected empty registry, got %v", v.Collections())
	}

	_, err := v.Validate("logs", map[string]any{})
	if !errors.Is(err, domain.ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}
	if errors.Is(err, domain.ErrNotInitialized) {
		t.Fatal("unknown schema must not be reported as a usage error")
	}
}

func TestDocumentValidatorPropagatesListerError(t *testing.T) {
	listErr := errors.New("connection refused")
	v := NewDocumentValidator(&stubLister{err: listErr}, schemaengine.New())

	if err := v.Initialize(context.Background()); err != listErr {
		t.Fatalf("expected lister error unchanged, got %v", err)
	}
	if _, err := v.Validate("people", map[string]any{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("failed initialization must leave validator unusable, got %v", err)
	}
}

func TestDocumentValidatorPropagatesRegistrationError(t *testing.T) {
	addErr := errors.New("malformed schema")
	v := NewDocumentValidator(peopleLister(), &stubEngine{addErr: addErr})

	if err := v.Initialize(context.Background()); err != addErr {
		t.Fatalf("expected registration error unchanged, got %v", err)
	}
}

func TestDocumentValidatorInitializeOnce(t *testing.T) {
	lister := peopleLister()
	v := NewDocumentValidator(lister, schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := v.Initialize(context.Background()); !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected one listCollections call, got %d", lister.calls)
	}
}

func TestDocumentValidatorSchema(t *testing.T) {
	v := NewDocumentValidator(peopleLister(), schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	raw, err := v.Schema("people")
	if err != nil || string(raw) != peopleSchema {
		t.Fatalf("unexpected schema: %s, %v", raw, err)
	}
	if _, err := v.Schema("logs"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentValidatorNamesContainingHash(t *testing.T) {
	lister := &stubLister{descriptors: []domain.CollectionDescriptor{
		{Type: "collection", Name: "orders#2024", JSONSchema: json.RawMessage(`{"required":["sku"],"properties":{"lines":{"required":["qty"]}}}`)},
	}}
	v := NewDocumentValidator(lister, schemaengine.New())
	if err := v.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	tests := []struct {
		name     string
		validate func() (domain.ValidationResult, error)
		missing  string
	}{
		{
			name:     "by name",
			validate: func() (domain.ValidationResult, error) { return v.Validate("orders#2024", map[string]any{}) },
			missing:  "sku",
		},
		{
			name: "by ref without pointer",
			validate: func() (domain.ValidationResult, error) {
				return v.ValidateRef(domain.SchemaRef{Ref: "orders#2024"}, map[string]any{})
			},
			missing: "sku",
		},
		{
			name: "by ref with pointer",
			validate: func() (domain.ValidationResult, error) {
				return v.ValidateRef(domain.SchemaRef{Ref: "orders#2024#/properties/lines"}, map[string]any{})
			},
			missing: "qty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.validate()
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if result.Valid || len(result.Errors) != 1 || result.Errors[0].Params["missingProperty"] != tt.missing {
				t.Fatalf("expected missing %q, got %+v", tt.missing, result)
			}
		})
	}
}
