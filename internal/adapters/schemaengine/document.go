package schemaengine

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const binarySubtypeUUID byte = 0x04

// Normalize converts a document into the value tree the compiler validates:
// objects become map[string]any, arrays []any, numbers json.Number. BSON-only
// scalars (ObjectID, DateTime, Binary, ...) keep their driver types so the
// bsonType keyword can tell them apart.
//
// Accepted inputs are json.RawMessage, plain Go maps, slices and scalars,
// bson.D/M/A/Raw, driver primitive types, time.Time, uuid.UUID and any
// struct the bson codec can marshal.
func Normalize(doc any) (any, error) {
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return decodeJSON(v)
	case bson.Raw:
		var d bson.D
		if err := bson.Unmarshal(v, &d); err != nil {
			return nil, fmt.Errorf("decode bson: %w", err)
		}
		return Normalize(d)
	case bool, string, json.Number:
		return v, nil
	case float64:
		return formatDouble(v), nil
	case float32:
		return formatDouble(float64(v)), nil
	case time.Time:
		return primitive.NewDateTimeFromTime(v), nil
	case uuid.UUID:
		return primitive.Binary{Subtype: binarySubtypeUUID, Data: append([]byte(nil), v[:]...)}, nil
	case []byte:
		return primitive.Binary{Data: append([]byte(nil), v...)}, nil
	case primitive.Null:
		return nil, nil
	case primitive.Decimal128:
		if s := v.String(); isRational(s) {
			return json.Number(s), nil
		}
		return v, nil
	case primitive.ObjectID, primitive.DateTime, primitive.Binary, primitive.Regex,
		primitive.Timestamp, primitive.Undefined, primitive.DBPointer, primitive.JavaScript,
		primitive.CodeWithScope, primitive.Symbol, primitive.MinKey, primitive.MaxKey:
		return v, nil
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			nv, err := Normalize(elem.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", elem.Key, err)
			}
			out[elem.Key] = nv
		}
		return out, nil
	case bson.M:
		return normalizeMap(v)
	case map[string]any:
		return normalizeMap(v)
	case bson.A:
		return normalizeSlice(v)
	case []any:
		return normalizeSlice(v)
	}
	return normalizeReflect(doc)
}

func normalizeMap(m map[string]any) (any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeSlice(s []any) (any, error) {
	out := make([]any, len(s))
	for i, v := range s {
		nv, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = nv
	}
	return out, nil
}

func normalizeReflect(doc any) (any, error) {
	rv := reflect.ValueOf(doc)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return formatDouble(rv.Float()), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return normalizeStruct(doc)
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			nv, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			nv, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out[key] = nv
		}
		return out, nil
	case reflect.Struct:
		return normalizeStruct(doc)
	}
	return nil, fmt.Errorf("unsupported document type %T", doc)
}

// normalizeStruct round-trips through the bson codec so struct tags and
// custom marshalers apply exactly as they would on insert.
func normalizeStruct(doc any) (any, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", doc, err)
	}
	return Normalize(bson.Raw(data))
}

// nonFiniteDouble holds NaN and ±Inf. It is not a JSON number, so numeric
// keywords such as minimum skip it while bsonType double and number accept it.
type nonFiniteDouble float64

func formatDouble(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nonFiniteDouble(f)
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

func isRational(s string) bool {
	_, ok := new(big.Rat).SetString(s)
	return ok
}
