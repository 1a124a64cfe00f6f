// Package schemaengine compiles MongoDB $jsonSchema validators and checks
// documents against them.
package schemaengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

const resourceScheme = "collection:///"

type Option func(*Engine)

// WithAllErrors makes Check report every violated constraint instead of
// stopping at the first one.
func WithAllErrors() Option {
	return func(e *Engine) {
		e.allErrors = true
	}
}

// Engine is a named schema registry backed by a single compiler. Schemas use
// draft 4 semantics, the dialect $jsonSchema is derived from, plus the
// bsonType keyword.
type Engine struct {
	allErrors bool

	mu       sync.RWMutex
	compiler *santhosh.Compiler
	raw      map[string]json.RawMessage
	docs     map[string]any
	compiled map[string]*santhosh.Schema

	lastErrors []domain.ErrorDetail
}

func New(opts ...Option) *Engine {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft4
	compiler.RegisterExtension("bsonType", bsonTypeMeta, bsonTypeCompiler{})

	e := &Engine{
		compiler: compiler,
		raw:      make(map[string]json.RawMessage),
		docs:     make(map[string]any),
		compiled: make(map[string]*santhosh.Schema),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddSchema registers schema under name and compiles it.
func (e *Engine) AddSchema(name string, schema json.RawMessage) error {
	if name == "" {
		return errors.New("schema name must not be empty")
	}
	doc, err := decodeJSON(schema)
	if err != nil {
		return fmt.Errorf("parse schema %q: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.raw[name]; ok {
		return fmt.Errorf("%w: %q", domain.ErrSchemaExists, name)
	}

	loc := resourceURL(name)
	if err := e.compiler.AddResource(loc, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("add schema %q: %w", name, err)
	}
	compiled, err := e.compiler.Compile(loc)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", name, err)
	}

	e.raw[name] = append(json.RawMessage(nil), schema...)
	e.docs[loc] = doc
	e.compiled[name] = compiled
	return nil
}

// Check validates document against the schema registered under name and
// returns the violations found by this call. name is matched literally. A
// non-empty pointer selects a subschema, e.g. "/properties/address".
func (e *Engine) Check(name, pointer string, document any) ([]domain.ErrorDetail, error) {
	sch, err := e.lookup(name, pointer)
	if err != nil {
		return nil, err
	}
	inst, err := Normalize(document)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}

	details, err := e.check(sch, inst)

	e.mu.Lock()
	e.lastErrors = details
	e.mu.Unlock()

	return details, err
}

// Validate is Check on a whole schema for callers that read violations
// through Errors.
func (e *Engine) Validate(name string, document any) (bool, error) {
	details, err := e.Check(name, "", document)
	if err != nil {
		return false, err
	}
	return len(details) == 0, nil
}

// Errors returns the violations recorded by the most recent Check or
// Validate on this engine, from any goroutine.
func (e *Engine) Errors() []domain.ErrorDetail {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastErrors == nil {
		return nil
	}
	return append([]domain.ErrorDetail(nil), e.lastErrors...)
}

// ErrorsText renders errs as one human readable line.
func (e *Engine) ErrorsText(errs []domain.ErrorDetail) string {
	if len(errs) == 0 {
		return "No errors"
	}
	parts := make([]string, 0, len(errs))
	for _, d := range errs {
		parts = append(parts, "data"+d.DataPath+" "+d.Message)
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) Schema(name string) (json.RawMessage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	raw, ok := e.raw[name]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

func (e *Engine) lookup(name, pointer string) (*santhosh.Schema, error) {
	key := name
	if pointer != "" {
		key = name + "\x00" + pointer
	}

	e.mu.RLock()
	_, known := e.raw[name]
	sch, cached := e.compiled[key]
	e.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSchema, name)
	}
	if cached {
		return sch, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sch, ok := e.compiled[key]; ok {
		return sch, nil
	}
	sch, err := e.compiler.Compile(resourceURL(name) + "#" + pointer)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q pointer %q: %w", name, pointer, err)
	}
	e.compiled[key] = sch
	return sch, nil
}

func (e *Engine) check(sch *santhosh.Schema, inst any) (details []domain.ErrorDetail, err error) {
	defer func() {
		if r := recover(); r != nil {
			details, err = nil, fmt.Errorf("validate document: %v", r)
		}
	}()

	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *santhosh.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}

	details = e.shape(ve, inst)
	if !e.allErrors && len(details) > 1 {
		details = details[:1]
	}
	return details, nil
}

func (e *Engine) shape(ve *santhosh.ValidationError, inst any) []domain.ErrorDetail {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return shapeErrors(ve, inst, e.docs)
}

// resourceURL escapes name so '#', '/', '%' and spaces stay part of the path.
func resourceURL(name string) string {
	return resourceScheme + url.PathEscape(name)
}

func decodeJSON(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("extra json tokens")
	}
	return v, nil
}
