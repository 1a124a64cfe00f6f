package schemaengine

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var bsonTypeMeta = santhosh.MustCompileString("bsonType.json", `{
	"properties": {
		"bsonType": {
			"anyOf": [
				{"$ref": "#/definitions/alias"},
				{
					"type": "array",
					"items": {"$ref": "#/definitions/alias"},
					"minItems": 1,
					"uniqueItems": true
				}
			]
		}
	},
	"definitions": {
		"alias": {
			"enum": [
				"double", "string", "object", "array", "binData", "undefined",
				"objectId", "bool", "date", "null", "regex", "dbPointer",
				"javascript", "symbol", "javascriptWithScope", "int",
				"timestamp", "long", "decimal", "minKey", "maxKey", "number"
			]
		}
	}
}`)

type bsonTypeCompiler struct{}

func (bsonTypeCompiler) Compile(_ santhosh.CompilerContext, m map[string]interface{}) (santhosh.ExtSchema, error) {
	raw, ok := m["bsonType"]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return bsonTypeSchema{v}, nil
	case []interface{}:
		aliases := make(bsonTypeSchema, 0, len(v))
		for _, item := range v {
			alias, ok := item.(string)
			if !ok {
				return nil, errors.New("bsonType entries must be strings")
			}
			aliases = append(aliases, alias)
		}
		return aliases, nil
	}
	return nil, errors.New("bsonType must be a string or an array of strings")
}

// bsonTypeSchema accepts a value matching any of its aliases.
type bsonTypeSchema []string

func (s bsonTypeSchema) Validate(ctx santhosh.ValidationContext, v interface{}) error {
	for _, alias := range s {
		if matchesBSONType(alias, v) {
			return nil
		}
	}
	return ctx.Error("bsonType", "should be %s", strings.Join(s, ","))
}

// matchesBSONType checks a normalized value. Numeric aliases are decided by
// value: int and long accept any integral number inside their range, double,
// decimal and number accept every number.
func matchesBSONType(alias string, v interface{}) bool {
	switch alias {
	case "double", "number":
		return isNumber(v)
	case "decimal":
		if _, ok := v.(primitive.Decimal128); ok {
			return true
		}
		return isNumber(v)
	case "int":
		return isIntegral(v, math.MinInt32, math.MaxInt32)
	case "long":
		return isIntegral(v, math.MinInt64, math.MaxInt64)
	case "string":
		_, ok := v.(string)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "null":
		return v == nil
	case "binData":
		_, ok := v.(primitive.Binary)
		return ok
	case "objectId":
		_, ok := v.(primitive.ObjectID)
		return ok
	case "date":
		_, ok := v.(primitive.DateTime)
		return ok
	case "regex":
		_, ok := v.(primitive.Regex)
		return ok
	case "timestamp":
		_, ok := v.(primitive.Timestamp)
		return ok
	case "undefined":
		_, ok := v.(primitive.Undefined)
		return ok
	case "dbPointer":
		_, ok := v.(primitive.DBPointer)
		return ok
	case "javascript":
		_, ok := v.(primitive.JavaScript)
		return ok
	case "javascriptWithScope":
		_, ok := v.(primitive.CodeWithScope)
		return ok
	case "symbol":
		_, ok := v.(primitive.Symbol)
		return ok
	case "minKey":
		_, ok := v.(primitive.MinKey)
		return ok
	case "maxKey":
		_, ok := v.(primitive.MaxKey)
		return ok
	}
	return false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case json.Number, nonFiniteDouble:
		return true
	}
	return false
}

func isIntegral(v interface{}, lo, hi int64) bool {
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	r, ok := new(big.Rat).SetString(string(n))
	if !ok || !r.IsInt() {
		return false
	}
	num := r.Num()
	if !num.IsInt64() {
		return false
	}
	i := num.Int64()
	return i >= lo && i <= hi
}
