package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const lineItemSchema = `{
	"type": "object",
	"required": ["product_id", "qty"],
	"properties": {
		"product_id": {"type": "integer", "minimum": 1},
		"qty": {"type": "integer", "minimum": %d}
	}
}`

var (
	createCartSchema = mustSchema(`{
		"type": "object",
		"required": ["items"],
		"properties": {
			"sessionId": {"type": "string"},
			"items": {"type": "array", "minItems": 1, "items": ` + fmt.Sprintf(lineItemSchema, 1) + `}
		}
	}`)

	updateCartSchema = mustSchema(`{
		"type": "object",
		"required": ["items"],
		"properties": {
			"items": {"type": "array", "items": ` + fmt.Sprintf(lineItemSchema, 0) + `}
		}
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("httpapi: invalid schema: %v", err))
	}
	return s
}

// validateBody returns nil when raw satisfies schema, or a message listing
// every violation.
func validateBody(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
