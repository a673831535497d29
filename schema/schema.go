// Package schema implements a read-only resolver over the subset of
// JSON Schema that the healer needs: properties, required, items,
// default, and fragment-local $ref pointers into definitions, $defs, or
// components/schemas. It is not a validator and does not attempt to
// understand the rest of the JSON Schema vocabulary.
package schema

import "encoding/json"

// maxRefHops bounds $ref resolution so a cyclic schema cannot hang the
// resolver. Real schemas never nest this deep; this is purely a
// defensive backstop, not a claim about valid schema depth.
const maxRefHops = 32

// Node is a JSON-Schema-like node. Parse keeps only the fields below;
// any other keyword in the input is ignored and not retained.
type Node struct {
	Type        string           `json:"type,omitempty"`
	Properties  map[string]*Node `json:"properties,omitempty"`
	Required    []string         `json:"required,omitempty"`
	Items       *Node            `json:"items,omitempty"`
	DefaultValue json.RawMessage `json:"default,omitempty"`
	Ref         string           `json:"$ref,omitempty"`
	Definitions map[string]*Node `json:"definitions,omitempty"`
	Defs        map[string]*Node `json:"$defs,omitempty"`
	Components  *components      `json:"components,omitempty"`

	root *Node
}

type components struct {
	Schemas map[string]*Node `json:"schemas,omitempty"`
}

// Parse decodes raw into a schema Node tree. An empty or nil raw yields
// a nil Node and no error; there simply is no schema configured.
func Parse(raw []byte) (*Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}

	node.setRoot(&node)

	return &node, nil
}

// setRoot threads a pointer back to the document root through every node
// reached during Parse, so $ref resolution never needs a second pass.
func (n *Node) setRoot(root *Node) {
	if n == nil {
		return
	}

	n.root = root

	for _, child := range n.Properties {
		child.setRoot(root)
	}

	n.Items.setRoot(root)

	for _, child := range n.Definitions {
		child.setRoot(root)
	}

	for _, child := range n.Defs {
		child.setRoot(root)
	}

	if n.Components != nil {
		for _, child := range n.Components.Schemas {
			child.setRoot(root)
		}
	}
}

// Frame is the minimal view of a nesting-stack frame the resolver needs
// to walk downward: whether it is an object, and if so which property
// is currently being read.
type Frame interface {
	IsObject() bool
	CurrentKey() (string, bool)
}

// Resolver resolves the governing sub-schema for a frame at a given
// stack depth, per the algorithm in the healer specification: follow
// $ref first, then descend via items (arrays) or properties[key]
// (objects).
type Resolver struct {
	root *Node
}

// NewResolver builds a Resolver over root. A nil root is valid: every
// Resolve call will report unknown, and the healer will close frames
// without attempting injection.
func NewResolver(root *Node) *Resolver {
	return &Resolver{root: root}
}

// Resolve returns the sub-schema governing stack[depth], or (nil, false)
// if it cannot be determined — an unresolvable $ref, a missing
// properties/items entry, or no schema configured at all.
func (r *Resolver) Resolve(stack []Frame, depth int) (*Node, bool) {
	if r == nil || r.root == nil || depth < 0 || depth >= len(stack) {
		return nil, false
	}

	current := r.root

	for i := 0; i <= depth; i++ {
		resolved, ok := resolveRef(current)
		if !ok {
			return nil, false
		}

		current = resolved

		if i == depth {
			return current, true
		}

		frame := stack[i]

		switch {
		case !frame.IsObject() && current.Items != nil:
			current = current.Items
		case frame.IsObject():
			key, hasKey := frame.CurrentKey()
			if !hasKey {
				return nil, false
			}

			child, ok := current.Properties[key]
			if !ok {
				return nil, false
			}

			current = child
		default:
			return nil, false
		}
	}

	return current, true
}

// resolveRef follows node.Ref chains (bounded by maxRefHops) until it
// reaches a node with no $ref. Returns (node, true) unchanged if node
// has no $ref at all.
func resolveRef(node *Node) (*Node, bool) {
	for hop := 0; node != nil && node.Ref != ""; hop++ {
		if hop >= maxRefHops {
			return nil, false
		}

		next, ok := lookupRef(node)
		if !ok {
			return nil, false
		}

		node = next
	}

	if node == nil {
		return nil, false
	}

	return node, true
}

// lookupRef resolves a single fragment-local $ref of the form
// #/definitions/Name, #/$defs/Name, or #/components/schemas/Name.
func lookupRef(node *Node) (*Node, bool) {
	root := node.root
	if root == nil {
		return nil, false
	}

	segments, ok := splitRef(node.Ref)
	if !ok {
		return nil, false
	}

	switch {
	case len(segments) == 2 && segments[0] == "definitions":
		found, ok := root.Definitions[segments[1]]
		return found, ok
	case len(segments) == 2 && segments[0] == "$defs":
		found, ok := root.Defs[segments[1]]
		return found, ok
	case len(segments) == 3 && segments[0] == "components" && segments[1] == "schemas":
		if root.Components == nil {
			return nil, false
		}

		found, ok := root.Components.Schemas[segments[2]]

		return found, ok
	default:
		return nil, false
	}
}

// splitRef splits "#/definitions/Foo" into ["definitions", "Foo"],
// rejecting anything that isn't a fragment-local pointer.
func splitRef(ref string) ([]string, bool) {
	if len(ref) == 0 || ref[0] != '#' {
		return nil, false
	}

	ref = ref[1:]
	if len(ref) == 0 || ref[0] != '/' {
		return nil, false
	}

	ref = ref[1:]
	if ref == "" {
		return nil, false
	}

	var segments []string

	start := 0

	for i := 0; i <= len(ref); i++ {
		if i == len(ref) || ref[i] == '/' {
			if i == start {
				return nil, false
			}

			segments = append(segments, ref[start:i])
			start = i + 1
		}
	}

	return segments, true
}

// Default resolves node's own $ref chain (if any) and returns its
// default value. ok is false when there is no default to use, in which
// case the caller should fall back to the null literal.
func (n *Node) Default() (json.RawMessage, bool) {
	if n == nil {
		return nil, false
	}

	resolved, ok := resolveRef(n)
	if !ok || resolved == nil || len(resolved.DefaultValue) == 0 {
		return nil, false
	}

	return resolved.DefaultValue, true
}
