package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// document is the on-disk YAML shape of a registry entry.
type document struct {
	Kind        string         `yaml:"kind" validate:"required,oneof=operator primitive hierarchy"`
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Parameters  []parameterDoc `yaml:"parameters" validate:"dive"`
}

type parameterDoc struct {
	Name      string     `yaml:"name" validate:"required_without=Primitive,excluded_with=Primitive"`
	Type      string     `yaml:"type" validate:"omitempty,oneof=integer real text"`
	Mandatory bool       `yaml:"mandatory"`
	Default   scalarList `yaml:"default"`
	Min       *float64   `yaml:"min"`
	Max       *float64   `yaml:"max"`
	Values    scalarList `yaml:"values"`
	Primitive string     `yaml:"primitive"`
	Version   string     `yaml:"version" validate:"excluded_without=Primitive"`
}

func (p parameterDoc) isReference() bool {
	return strings.TrimSpace(p.Primitive) != ""
}

// scalarList accepts either a single scalar or a sequence of scalars.
type scalarList []string

func (l *scalarList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" || node.Value == "" {
			*l = nil
			return nil
		}
		*l = scalarList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(scalarList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: list elements must be scalars", item.Line)
			}
			if item.Value == "" {
				continue
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a scalar or a list of scalars", node.Line)
	}
}

func decodeDocument(data []byte, validate *validator.Validate) (document, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return document{}, errors.New("empty document")
		}
		return document{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return document{}, describeValidation(err)
	}
	if err := doc.check(); err != nil {
		return document{}, err
	}
	return doc, nil
}

// describeValidation flattens validator output into one readable error.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "document.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s fails %s", field, fe.Tag()))
	}
	return fmt.Errorf("invalid document: %s", strings.Join(parts, "; "))
}

// check enforces the rules struct tags cannot express.
func (d document) check() error {
	kind := Kind(d.Kind)
	if kind == KindPrimitive && len(d.Parameters) != 1 {
		return fmt.Errorf("primitive document must declare exactly one parameter, found %d", len(d.Parameters))
	}
	seen := make(map[string]struct{}, len(d.Parameters))
	for i, param := range d.Parameters {
		if param.isReference() {
			if kind != KindOperator {
				return fmt.Errorf("parameters[%d]: primitive references are only allowed in operator documents", i)
			}
			continue
		}
		if param.Type == "" {
			return fmt.Errorf("parameters[%d] %q: type is required", i, param.Name)
		}
		if _, dup := seen[param.Name]; dup {
			return fmt.Errorf("parameters[%d]: duplicate parameter name %q", i, param.Name)
		}
		seen[param.Name] = struct{}{}
		if err := param.spec().checkConsistency(); err != nil {
			return fmt.Errorf("parameters[%d] %q: %w", i, param.Name, err)
		}
	}
	return nil
}

func (p parameterDoc) spec() ParameterSpec {
	return ParameterSpec{
		Name:      strings.TrimSpace(p.Name),
		Type:      ParamType(p.Type),
		Mandatory: p.Mandatory,
		Default:   append([]string(nil), p.Default...),
		Min:       p.Min,
		Max:       p.Max,
		Values:    append([]string(nil), p.Values...),
	}
}

func (p ParameterSpec) checkConsistency() error {
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("min %v exceeds max %v", *p.Min, *p.Max)
	}
	if (p.Min != nil || p.Max != nil) && !p.Type.Numeric() {
		return fmt.Errorf("min/max require a numeric type, got %s", p.Type)
	}
	if !p.Type.Numeric() {
		return nil
	}
	for _, value := range p.Default {
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return fmt.Errorf("default %q is not a valid %s", value, p.Type)
		}
	}
	return nil
}
