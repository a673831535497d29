package proxy

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/samber/lo"
)

// cleanSchemaDefaults strips "default" from every sub-schema in
// rawSchema before it is forwarded upstream. Many OpenAI-compatible
// APIs reject a JSON Schema response_format carrying "default", even
// though it is exactly the value the healer needs to fill in missing
// required properties on the tail it synthesizes. The schema's
// defaults already live in the healer's local copy by the time this
// runs, so forwarding them upstream would be pointless anyway.
func cleanSchemaDefaults(rawSchema json.RawMessage) (json.RawMessage, error) {
	return transformSchema(rawSchema, func(s *jsonschema.Schema) {
		s.Default = nil
	})
}

func transformSchema(rawSchema json.RawMessage, transform func(*jsonschema.Schema)) (json.RawMessage, error) {
	var root jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &root); err != nil {
		return nil, err
	}

	transformRecursive(&root, transform)

	return json.Marshal(&root)
}

// transformRecursive walks every sub-schema reachable from schema,
// mirroring the traversal the teacher's CleanSchema performs over the
// same jsonschema.Schema struct.
func transformRecursive(schema *jsonschema.Schema, transform func(*jsonschema.Schema)) {
	if schema == nil {
		return
	}

	transform(schema)

	lo.ForEach([]*jsonschema.Schema{
		schema.Items,
		schema.AdditionalItems,
		schema.Contains,
		schema.Not,
		schema.If,
		schema.Then,
		schema.Else,
		schema.PropertyNames,
		schema.UnevaluatedProperties,
		schema.UnevaluatedItems,
		schema.ContentSchema,
	}, func(sub *jsonschema.Schema, _ int) {
		transformRecursive(sub, transform)
	})

	lo.ForEach([][]*jsonschema.Schema{
		schema.PrefixItems,
		schema.ItemsArray,
		schema.AllOf,
		schema.AnyOf,
		schema.OneOf,
	}, func(subs []*jsonschema.Schema, _ int) {
		lo.ForEach(subs, func(sub *jsonschema.Schema, _ int) {
			transformRecursive(sub, transform)
		})
	})

	lo.ForEach([]map[string]*jsonschema.Schema{
		schema.Defs,
		schema.Definitions,
		schema.DependentSchemas,
		schema.Properties,
		schema.PatternProperties,
		schema.DependencySchemas,
	}, func(subs map[string]*jsonschema.Schema, _ int) {
		lo.ForEach(lo.Values(subs), func(sub *jsonschema.Schema, _ int) {
			transformRecursive(sub, transform)
		})
	})
}
