// Package yamldoc decodes a YAML stream that must hold a single document.
//
// Decoding follows the rules of a safe loader: only the YAML core tags are
// constructed, a repeated mapping key keeps its last value, and merge keys
// (<<) are flattened into the enclosing mapping. Mappings come back as
// map[string]any and sequences as []any.
package yamldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMultipleDocuments is returned when the stream holds more than one
	// document.
	ErrMultipleDocuments = errors.New("expected a single document in the stream")

	// ErrUnknownTag is matched by every *TagError.
	ErrUnknownTag = errors.New("could not determine a constructor for the tag")
)

// TagError reports a node tagged with something outside the core schema.
type TagError struct {
	Tag    string
	Line   int
	Column int
}

func (e *TagError) Error() string {
	return fmt.Sprintf("line %d: could not determine a constructor for the tag '%s'", e.Line, e.Tag)
}

func (e *TagError) Is(target error) bool {
	return target == ErrUnknownTag
}

// Tags each node kind may carry.
var coreTags = map[yaml.Kind]map[string]bool{
	yaml.ScalarNode: {
		"!!null": true, "!!bool": true, "!!int": true, "!!float": true,
		"!!str": true, "!!binary": true, "!!timestamp": true, "!!merge": true,
	},
	yaml.SequenceNode: {"!!seq": true, "!!omap": true, "!!pairs": true},
	yaml.MappingNode:  {"!!map": true, "!!set": true},
}

// Decode reads r to the end and returns the value of its only document.
// An empty stream decodes to nil.
func Decode(r io.Reader) (any, error) {
	dec := yaml.NewDecoder(r)

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var next yaml.Node
	switch err := dec.Decode(&next); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("line %d: %w", next.Line, ErrMultipleDocuments)
	}

	c := &converter{
		done:   make(map[*yaml.Node]any),
		active: make(map[*yaml.Node]bool),
	}
	return c.value(&doc)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (any, error) {
	return Decode(bytes.NewReader(data))
}

// converter builds Go values from a node tree. Collections reached through
// several aliases are built once and shared.
type converter struct {
	done   map[*yaml.Node]any
	active map[*yaml.Node]bool
}

func (c *converter) value(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return c.value(n.Content[0])
	case yaml.AliasNode:
		return c.value(n.Alias)
	case yaml.ScalarNode:
		return c.scalar(n)
	case yaml.SequenceNode, yaml.MappingNode:
		if v, ok := c.done[n]; ok {
			return v, nil
		}
		if c.active[n] {
			return nil, fmt.Errorf("line %d: recursive alias", n.Line)
		}
		if err := checkTag(n); err != nil {
			return nil, err
		}

		c.active[n] = true
		var (
			v   any
			err error
		)
		if n.Kind == yaml.SequenceNode {
			v, err = c.sequence(n)
		} else {
			v, err = c.mapping(n)
		}
		delete(c.active, n)
		if err != nil {
			return nil, err
		}
		c.done[n] = v
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unexpected node kind %d", n.Line, n.Kind)
	}
}

func (c *converter) scalar(n *yaml.Node) (any, error) {
	if err := checkTag(n); err != nil {
		return nil, err
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *converter) sequence(n *yaml.Node) (any, error) {
	out := make([]any, 0, len(n.Content))
	for _, item := range n.Content {
		v, err := c.value(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// mapping applies merged mappings first, then the node's own pairs in
// order, so explicit keys override merged ones and a repeated key keeps
// its last value. Within one merge list the earlier mapping wins.
func (c *converter) mapping(n *yaml.Node) (any, error) {
	out := make(map[string]any, len(n.Content)/2)

	for i := 0; i+1 < len(n.Content); i += 2 {
		if !isMergeKey(n.Content[i]) {
			continue
		}
		sources, err := c.mergeSources(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		for j := len(sources) - 1; j >= 0; j-- {
			for k, v := range sources[j] {
				out[k] = v
			}
		}
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if isMergeKey(k) {
			continue
		}
		key, err := c.key(k)
		if err != nil {
			return nil, err
		}
		val, err := c.value(v)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

func (c *converter) key(n *yaml.Node) (string, error) {
	if n.Kind == yaml.AliasNode {
		return c.key(n.Alias)
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: found unhashable key", n.Line)
	}
	if _, err := c.scalar(n); err != nil {
		return "", err
	}
	return n.Value, nil
}

func (c *converter) mergeSources(n *yaml.Node) ([]map[string]any, error) {
	v, err := c.value(n)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("line %d: expected a mapping for merging, but found %T", n.Line, item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: expected a mapping or list of mappings for merging", n.Line)
	}
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!merge"
}

func checkTag(n *yaml.Node) error {
	tag := n.ShortTag()
	if coreTags[n.Kind][tag] {
		return nil
	}
	return &TagError{Tag: tag, Line: n.Line, Column: n.Column}
}
