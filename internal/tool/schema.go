package tool

import (
	"fmt"
)

// Schema is the JSON-schema subset tools declare for their arguments:
// object type, typed properties, required list, string enums.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single argument
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ObjectSchema builds an object schema from properties and a required list
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	return Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Parameters renders the schema as the generic map providers expect
func (s Schema) Parameters() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p.asMap()
	}
	out := map[string]interface{}{
		"type":       s.Type,
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

func (p Property) asMap() map[string]interface{} {
	out := map[string]interface{}{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Items != nil {
		out["items"] = p.Items.asMap()
	}
	return out
}

// Validate checks decoded arguments against the schema
func (s Schema) Validate(args map[string]interface{}) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			return fmt.Errorf("unexpected argument %q", name)
		}
		if err := prop.validate(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p Property) validate(name string, value interface{}) error {
	if value == nil {
		return fmt.Errorf("argument %q is null", name)
	}

	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", name)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("argument %q must be one of %v", name, p.Enum)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("argument %q must be a number", name)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("argument %q must be an integer", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", name)
		}
	case "array":
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("argument %q must be an array", name)
		}
		if p.Items != nil {
			for i, item := range items {
				if err := p.Items.validate(fmt.Sprintf("%s[%d]", name, i), item); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("argument %q must be an object", name)
		}
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", name, p.Type)
	}
	return nil
}
