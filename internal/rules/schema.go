package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Kind identifies what a rule document declares. It is taken from the
// document's single top-level section key.
type Kind string

// Document kinds.
const (
	KindShared           Kind = "shared"
	KindVendorDetection  Kind = "vendor_detection"
	KindLayouts          Kind = "layouts"
	KindUoM              Kind = "uom_extraction"
	KindCategoriesL1     Kind = "categories_l1"
	KindCategoriesL2     Kind = "categories_l2"
	KindCategoryMaps     Kind = "category_maps"
	KindCategoryKeywords Kind = "category_keywords"
)

var kinds = []Kind{
	KindShared, KindVendorDetection, KindLayouts, KindUoM,
	KindCategoriesL1, KindCategoriesL2, KindCategoryMaps, KindCategoryKeywords,
}

//go:embed schemas/*.json
var schemaFS embed.FS

type schemaSet struct {
	byKind map[Kind]*jsonschema.Schema
}

func compileSchemas() (*schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, k := range kinds {
		raw, err := schemaFS.ReadFile("schemas/" + string(k) + ".json")
		if err != nil {
			return nil, fmt.Errorf("missing schema for %s: %w", k, err)
		}
		if err := compiler.AddResource(schemaURL(k), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", k, err)
		}
	}

	set := &schemaSet{byKind: make(map[Kind]*jsonschema.Schema, len(kinds))}
	for _, k := range kinds {
		schema, err := compiler.Compile(schemaURL(k))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", k, err)
		}
		set.byKind[k] = schema
	}
	return set, nil
}

func schemaURL(k Kind) string {
	return string(k) + ".json"
}

// validate parses raw YAML, determines its kind and checks it against the kind's schema.
func (s *schemaSet) validate(raw []byte) (Kind, error) {
	var root any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return "", fmt.Errorf("malformed YAML: %w", err)
	}
	if root == nil {
		return "", errors.New("document is empty")
	}
	top, ok := root.(map[string]any)
	if !ok {
		return "", errors.New("document root must be a mapping")
	}

	kind, err := kindOf(top)
	if err != nil {
		return "", err
	}

	// Round-trip through JSON so the validator sees JSON-native types.
	encoded, err := json.Marshal(top)
	if err != nil {
		return "", fmt.Errorf("document is not representable as JSON: %w", err)
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return "", fmt.Errorf("document is not representable as JSON: %w", err)
	}

	if err := s.byKind[kind].Validate(doc); err != nil {
		return "", fmt.Errorf("%s document does not match schema: %w", kind, err)
	}
	return kind, nil
}

func kindOf(top map[string]any) (Kind, error) {
	var found []Kind
	var unknown []string
	for key := range top {
		if key == "meta" {
			continue
		}
		k, ok := parseKind(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		found = append(found, k)
	}

	switch {
	case len(unknown) > 0:
		sort.Strings(unknown)
		return "", fmt.Errorf("unknown rule section(s): %s", strings.Join(unknown, ", "))
	case len(found) == 0:
		return "", errors.New("document declares no rule section")
	case len(found) > 1:
		return "", fmt.Errorf("document declares %d rule sections, expected one", len(found))
	}
	return found[0], nil
}

func parseKind(s string) (Kind, bool) {
	for _, k := range kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
