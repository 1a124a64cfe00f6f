package schemaengine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
)

var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	quotedPattern = regexp.MustCompile(`'((?:\\.|[^'\\])*)'`)
)

// shapeErrors flattens a validation error tree into one detail per violated
// keyword, in the order the compiler reported them.
func shapeErrors(ve *santhosh.ValidationError, inst any, docs map[string]any) []domain.ErrorDetail {
	if len(ve.Causes) == 0 {
		return leafDetails(ve, inst, docs)
	}
	var out []domain.ErrorDetail
	for _, cause := range ve.Causes {
		out = append(out, shapeErrors(cause, inst, docs)...)
	}
	return out
}

func leafDetails(ve *santhosh.ValidationError, inst any, docs map[string]any) []domain.ErrorDetail {
	keyword := lastSegment(ve.KeywordLocation)
	dataPath := jsPath(inst, ve.InstanceLocation)
	schemaPath := "#" + ve.KeywordLocation

	if keyword == "required" {
		missing := missingProperties(ve, inst, docs)
		if len(missing) > 0 {
			out := make([]domain.ErrorDetail, 0, len(missing))
			for _, prop := range missing {
				out = append(out, domain.ErrorDetail{
					Keyword:    keyword,
					DataPath:   dataPath,
					SchemaPath: schemaPath,
					Params:     map[string]any{"missingProperty": prop},
					Message:    fmt.Sprintf("should have required property '%s'", prop),
				})
			}
			return out
		}
	}

	return []domain.ErrorDetail{{
		Keyword:    keyword,
		DataPath:   dataPath,
		SchemaPath: schemaPath,
		Message:    ve.Message,
	}}
}

// missingProperties lists required properties absent from the instance, in
// schema order. The required list is read from the registered schema; when
// the location cannot be resolved the names quoted in the message are used.
func missingProperties(ve *santhosh.ValidationError, inst any, docs map[string]any) []string {
	obj, ok := resolvePointer(inst, ve.InstanceLocation).(map[string]any)
	if !ok {
		return nil
	}

	var required []string
	base, fragment, _ := strings.Cut(ve.AbsoluteKeywordLocation, "#")
	if list, ok := resolvePointer(docs[base], fragment).([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				required = append(required, name)
			}
		}
	} else {
		for _, m := range quotedPattern.FindAllStringSubmatch(ve.Message, -1) {
			required = append(required, strings.ReplaceAll(m[1], `\'`, `'`))
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := obj[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// jsPath converts an instance JSON pointer into property access notation,
// e.g. "/items/0/sku" into ".items[0].sku".
func jsPath(inst any, pointer string) string {
	var b strings.Builder
	cur := inst
	for _, seg := range splitPointer(pointer) {
		switch node := cur.(type) {
		case []any:
			b.WriteString("[" + seg + "]")
			if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(node) {
				cur = node[i]
			} else {
				cur = nil
			}
			continue
		case map[string]any:
			cur = node[seg]
		default:
			cur = nil
		}
		if identPattern.MatchString(seg) {
			b.WriteString("." + seg)
		} else {
			b.WriteString("['" + strings.ReplaceAll(seg, "'", `\'`) + "']")
		}
	}
	return b.String()
}

func resolvePointer(doc any, pointer string) any {
	cur := doc
	for _, seg := range splitPointer(pointer) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

func splitPointer(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	segs := strings.Split(pointer, "/")
	for i, seg := range segs {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segs[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return segs
}

func lastSegment(pointer string) string {
	segs := splitPointer(pointer)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
