// internal/server/schema.go
package server

import (
	"reflect"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
)

// inputSchema describes a params struct from its json and description tags.
// Embedded structs are flattened. Fields without omitempty are required.
func inputSchema(params interface{}) protocol.InputSchema {
	schema := protocol.InputSchema{
		Type:       protocol.Object,
		Properties: map[string]interface{}{},
	}
	if params != nil {
		addFields(reflect.TypeOf(params), &schema)
	}
	return schema
}

func addFields(t reflect.Type, schema *protocol.InputSchema) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			addFields(f.Type, schema)
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		prop := map[string]interface{}{"type": jsonType(f.Type)}
		if elem := derefType(f.Type); elem.Kind() == reflect.Slice {
			prop["items"] = map[string]interface{}{"type": jsonType(elem.Elem())}
		}
		if desc := f.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		schema.Properties[name] = prop
		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func jsonType(t reflect.Type) string {
	switch derefType(t).Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
