package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/ports"
)

// DocumentValidator checks candidate documents against the $jsonSchema
// validators attached to a database's collections.
type DocumentValidator struct {
	lister ports.CollectionLister
	engine ports.SchemaEngine

	initMu      sync.Mutex
	initialized atomic.Bool
	collections []string
}

// NewDocumentValidator wires lister to engine. The engine stays owned by the
// caller, who may configure it (all errors mode) or register further schemas
// on it.
func NewDocumentValidator(lister ports.CollectionLister, engine ports.SchemaEngine) *DocumentValidator {
	return &DocumentValidator{lister: lister, engine: engine}
}

// Initialize loads collection metadata and registers every collection
// $jsonSchema with the engine. It must succeed once before Validate is used.
// Lister and engine errors are returned as they are.
func (v *DocumentValidator) Initialize(ctx context.Context) error {
	v.initMu.Lock()
	defer v.initMu.Unlock()
	if v.initialized.Load() {
		return domain.ErrAlreadyInitialized
	}

	descriptors, err := v.lister.ListCollections(ctx)
	if err != nil {
		return err
	}

	var names []string
	for _, desc := range descriptors {
		if !desc.HasSchema() {
			continue
		}
		if err := v.engine.AddSchema(desc.Name, desc.JSONSchema); err != nil {
			return err
		}
		names = append(names, desc.Name)
	}

	v.collections = names
	v.initialized.Store(true)
	return nil
}

// Validate checks document against the schema registered for collection name.
func (v *DocumentValidator) Validate(name string, document any) (domain.ValidationResult, error) {
	if err := v.requireInitialized(); err != nil {
		return domain.ValidationResult{}, err
	}
	return v.check(name, "", document)
}

// ValidateRef checks document against a registered schema or a subschema of
// one addressed by JSON pointer ("name#/properties/address").
func (v *DocumentValidator) ValidateRef(ref domain.SchemaRef, document any) (domain.ValidationResult, error) {
	if err := v.requireInitialized(); err != nil {
		return domain.ValidationResult{}, err
	}
	name, pointer := v.splitRef(ref.Ref)
	return v.check(name, pointer, document)
}

// splitRef treats a ref naming a registered schema as that name, since
// collection names may contain '#'. Otherwise the pointer starts after the
// last '#'.
func (v *DocumentValidator) splitRef(ref string) (name, pointer string) {
	if _, ok := v.engine.Schema(ref); ok {
		return ref, ""
	}
	i := strings.LastIndex(ref, "#")
	if i < 0 {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}

// Collections lists the collections whose schemas Initialize registered.
func (v *DocumentValidator) Collections() []string {
	if !v.initialized.Load() {
		return nil
	}
	return append([]string(nil), v.collections...)
}

func (v *DocumentValidator) Schema(name string) (json.RawMessage, error) {
	if err := v.requireInitialized(); err != nil {
		return nil, err
	}
	raw, ok := v.engine.Schema(name)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (v *DocumentValidator) check(name, pointer string, document any) (domain.ValidationResult, error) {
	details, err := v.engine.Check(name, pointer, document)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return domain.ValidationResult{
		Valid:      len(details) == 0,
		Errors:     details,
		ErrorsText: v.engine.ErrorsText(details),
	}, nil
}

func (v *DocumentValidator) requireInitialized() error {
	if !v.initialized.Load() {
		return domain.ErrNotInitialized
	}
	return nil
}
