package schemaengine

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

const peopleSchema = `{
	"bsonType": "object",
	"required": ["name", "year"],
	"properties": {
		"name": {"bsonType": "string", "description": "must be a string and is required"},
		"year": {"bsonType": "int", "minimum": 2017, "maximum": 3017, "description": "must be an integer in [ 2017, 3017 ] and is required"}
	}
}`

func newPeopleEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	if err := e.AddSchema("people", json.RawMessage(peopleSchema)); err != nil {
		t.Fatalf("add schema: %v", err)
	}
	return e
}

func TestCheckDefaultReportsFirstViolation(t *testing.T) {
	e := newPeopleEngine(t)

	details, err := e.Check("people", "", map[string]any{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	want := []domain.ErrorDetail{{
		Keyword:    "required",
		DataPath:   "",
		SchemaPath: "#/required",
		Params:     map[string]any{"missingProperty": "name"},
		Message:    "should have required property 'name'",
	}}
	if !reflect.DeepEqual(details, want) {
		t.Fatalf("unexpected details: %+v", details)
	}
	if got := e.ErrorsText(details); got != "data should have required property 'name'" {
		t.Fatalf("unexpected errors text: %q", got)
	}
}

func TestCheckAllErrorsReportsEveryMissingProperty(t *testing.T) {
	e := newPeopleEngine(t, WithAllErrors())

	details, err := e.Check("people", "", map[string]any{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %+v", details)
	}
	if details[0].Params["missingProperty"] != "name" || details[1].Params["missingProperty"] != "year" {
		t.Fatalf("unexpected missing properties: %+v", details)
	}
	want := "data should have required property 'name', data should have required property 'year'"
	if got := e.ErrorsText(details); got != want {
		t.Fatalf("unexpected errors text: %q", got)
	}
}

func TestCheckAcceptsValidDocumentsInEveryShape(t *testing.T) {
	e := newPeopleEngine(t)

	type person struct {
		Name string `bson:"name"`
		Year int    `bson:"year"`
	}

	docs := map[string]any{
		"map":    map[string]any{"name": "Ada", "year": 2018},
		"json":   json.RawMessage(`{"name":"Ada","year":2018}`),
		"bson.D": bson.D{{Key: "name", Value: "Ada"}, {Key: "year", Value: int32(2018)}},
		"bson.M": bson.M{"name": "Ada", "year": int64(2018)},
		"struct": person{Name: "Ada", Year: 2018},
		"ptr":    &person{Name: "Ada", Year: 3017},
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			details, err := e.Check("people", "", doc)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if len(details) != 0 {
				t.Fatalf("expected no violations, got %+v", details)
			}
		})
	}
}

func TestCheckReportsKeywordViolations(t *testing.T) {
	e := newPeopleEngine(t)

	cases := []struct {
		name     string
		doc      any
		keyword  string
		dataPath string
	}{
		{name: "wrong bson type", doc: map[string]any{"name": 42, "year": 2018}, keyword: "bsonType", dataPath: ".name"},
		{name: "below minimum", doc: map[string]any{"name": "Ada", "year": 2000}, keyword: "minimum", dataPath: ".year"},
		{name: "above maximum", doc: map[string]any{"name": "Ada", "year": 4000}, keyword: "maximum", dataPath: ".year"},
		{name: "fraction is not int", doc: json.RawMessage(`{"name":"Ada","year":2018.5}`), keyword: "bsonType", dataPath: ".year"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details, err := e.Check("people", "", tc.doc)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if len(details) != 1 {
				t.Fatalf("expected 1 detail, got %+v", details)
			}
			if details[0].Keyword != tc.keyword || details[0].DataPath != tc.dataPath {
				t.Fatalf("unexpected detail: %+v", details[0])
			}
		})
	}
}

func TestBSONTypeMessageNamesExpectedType(t *testing.T) {
	e := newPeopleEngine(t)

	details, err := e.Check("people", "", map[string]any{"name": true, "year": 2020})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 1 || details[0].Message != "should be string" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if got := e.ErrorsText(details); got != "data.name should be string" {
		t.Fatalf("unexpected errors text: %q", got)
	}
}

func TestCheckBSONScalarTypes(t *testing.T) {
	e := New(WithAllErrors())
	schema := `{
		"bsonType": "object",
		"required": ["_id", "createdAt", "ref"],
		"properties": {
			"_id": {"bsonType": "objectId"},
			"createdAt": {"bsonType": "date"},
			"ref": {"bsonType": ["binData", "null"]},
			"total": {"bsonType": "decimal"}
		}
	}`
	if err := e.AddSchema("orders", json.RawMessage(schema)); err != nil {
		t.Fatalf("add schema: %v", err)
	}

	total, err := primitive.ParseDecimal128("12.50")
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	valid := bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "createdAt", Value: time.Now()},
		{Key: "ref", Value: uuid.New()},
		{Key: "total", Value: total},
	}
	details, err := e.Check("orders", "", valid)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 0 {
		t.Fatalf("expected no violations, got %+v", details)
	}

	invalid := bson.M{"_id": "not-an-object-id", "createdAt": "yesterday", "ref": nil}
	details, err = e.Check("orders", "", invalid)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 violations, got %+v", details)
	}
	for _, d := range details {
		if d.Keyword != "bsonType" {
			t.Fatalf("unexpected keyword: %+v", d)
		}
	}
}

func TestCheckArrayDataPath(t *testing.T) {
	e := New()
	schema := `{"bsonType":"object","properties":{"tags":{"bsonType":"array","items":{"bsonType":"string"}}}}`
	if err := e.AddSchema("posts", json.RawMessage(schema)); err != nil {
		t.Fatalf("add schema: %v", err)
	}

	details, err := e.Check("posts", "", map[string]any{"tags": []string{"a"}})
	if err != nil || len(details) != 0 {
		t.Fatalf("expected valid document, got %+v, %v", details, err)
	}

	details, err = e.Check("posts", "", map[string]any{"tags": []any{"a", 1}})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 1 || details[0].DataPath != ".tags[1]" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestCheckBySchemaReference(t *testing.T) {
	e := New()
	schema := `{"bsonType":"object","properties":{"address":{"bsonType":"object","required":["city"]}}}`
	if err := e.AddSchema("places", json.RawMessage(schema)); err != nil {
		t.Fatalf("add schema: %v", err)
	}

	details, err := e.Check("places", "/properties/address", map[string]any{"street": "Main"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(details) != 1 || details[0].Params["missingProperty"] != "city" {
		t.Fatalf("unexpected details: %+v", details)
	}

	if _, err := e.Check("places", "/properties/missing", map[string]any{}); err == nil {
		t.Fatal("expected error for unresolvable reference")
	}
}

func TestCheckUnknownSchema(t *testing.T) {
	e := New()
	_, err := e.Check("ghosts", "", map[string]any{})
	if !errors.Is(err, domain.ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}
}

func TestAddSchemaRejectsDuplicatesAndMalformedSchemas(t *testing.T) {
	e := newPeopleEngine(t)
	if err := e.AddSchema("people", json.RawMessage(peopleSchema)); !errors.Is(err, domain.ErrSchemaExists) {
		t.Fatalf("expected ErrSchemaExists, got %v", err)
	}

	for name, schema := range map[string]string{
		"not json":         `{`,
		"required string":  `{"required":"name"}`,
		"unknown bsonType": `{"bsonType":"integer"}`,
	} {
		if err := e.AddSchema(name, json.RawMessage(schema)); err == nil {
			t.Fatalf("%s: expected compile error", name)
		}
	}
	for _, name := range []string{"not json", "required string", "unknown bsonType"} {
		if _, ok := e.Schema(name); ok {
			t.Fatalf("failed schema %q must not be registered", name)
		}
	}
}

func TestValidateRecordsLastErrors(t *testing.T) {
	e := newPeopleEngine(t)

	ok, err := e.Validate("people", map[string]any{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected invalid document")
	}
	if errs := e.Errors(); len(errs) != 1 || errs[0].Keyword != "required" {
		t.Fatalf("unexpected last errors: %+v", errs)
	}

	ok, err = e.Validate("people", map[string]any{"name": "Ada", "year": 2020})
	if err != nil || !ok {
		t.Fatalf("expected valid document, got %v, %v", ok, err)
	}
	if errs := e.Errors(); errs != nil {
		t.Fatalf("expected last errors to be cleared, got %+v", errs)
	}
	if got := e.ErrorsText(e.Errors()); got != "No errors" {
		t.Fatalf("unexpected errors text: %q", got)
	}
}

func TestSchemaReturnsRegisteredDocument(t *testing.T) {
	e := newPeopleEngine(t)
	raw, ok := e.Schema("people")
	if !ok || string(raw) != peopleSchema {
		t.Fatalf("unexpected schema: %s", raw)
	}
	if _, ok := e.Schema("ghosts"); ok {
		t.Fatal("expected missing schema")
	}
}

func TestCheckNonFiniteDoubles(t *testing.T) {
	e := New(WithAllErrors())
	schema := `{
		"bsonType": "object",
		"properties": {
			"score": {"bsonType": ["double", "number"], "minimum": 0, "maximum": 10, "multipleOf": 0.5},
			"count": {"bsonType": "int", "minimum": 0}
		}
	}`
	if err := e.AddSchema("stats", json.RawMessage(schema)); err != nil {
		t.Fatalf("add schema: %v", err)
	}

	values := map[string]float64{"NaN": math.NaN(), "+Inf": math.Inf(1), "-Inf": math.Inf(-1)}
	for label, f := range values {
		inputs := map[string]any{
			"float64": map[string]any{"score": f},
			"bson.D":  bson.D{{Key: "score", Value: f}},
		}
		for kind, doc := range inputs {
			t.Run(label+" "+kind+" as double", func(t *testing.T) {
				details, err := e.Check("stats", "", doc)
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if len(details) != 0 {
					t.Fatalf("expected non-finite double to pass bsonType double, got %+v", details)
				}
			})
		}

		t.Run(label+" as int", func(t *testing.T) {
			details, err := e.Check("stats", "", bson.D{{Key: "count", Value: f}})
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if len(details) != 1 || details[0].Keyword != "bsonType" || details[0].DataPath != ".count" {
				t.Fatalf("expected one bsonType violation, got %+v", details)
			}
		})
	}
}

func TestCheckNamesNeedingEscapes(t *testing.T) {
	names := []string{"orders#2024", "50%off", "audit log", "a/b", "plain"}
	schema := `{"bsonType":"object","required":["id","kind"],"properties":{"meta":{"required":["source"]}}}`

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			e := New(WithAllErrors())
			if err := e.AddSchema(name, json.RawMessage(schema)); err != nil {
				t.Fatalf("add schema: %v", err)
			}

			details, err := e.Check(name, "", map[string]any{"kind": "x", "zzz": 1})
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if len(details) != 1 || details[0].Params["missingProperty"] != "id" || details[0].SchemaPath != "#/required" {
				t.Fatalf("unexpected details: %+v", details)
			}

			details, err = e.Check(name, "/properties/meta", map[string]any{})
			if err != nil {
				t.Fatalf("check pointer: %v", err)
			}
			if len(details) != 1 || details[0].Params["missingProperty"] != "source" {
				t.Fatalf("unexpected pointer details: %+v", details)
			}

			if _, ok := e.Schema(name); !ok {
				t.Fatal("expected schema to be registered under its literal name")
			}
		})
	}
}
