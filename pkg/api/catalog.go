package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/fivetwenty-io/restkit/pkg/category"
	"gopkg.in/yaml.v3"
)

// Fields is the loosely typed input of catalog operations, keyed by wire name.
type Fields map[string]any

// DynamicOperation is an operation loaded from a catalog.
type DynamicOperation = Operation[Fields, json.RawMessage]

// CodedError is the error produced by a catalog-declared error variant.
type CodedError struct {
	Operation string
	Code      string
	Message   string
	// PathValues holds the input's values for the operation's path fields.
	PathValues map[string]any
	categories []category.Category
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Operation, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// Categories implements category.Categorized.
func (e *CodedError) Categories() []category.Category {
	return slices.Clone(e.categories)
}

// Catalog is a set of operations declared in YAML.
type Catalog struct {
	operations map[string]*DynamicOperation
}

type catalogFile struct {
	Operations []operationSpec `yaml:"operations"`
}

type operationSpec struct {
	Name   string        `yaml:"name"`
	Method string        `yaml:"method"`
	Path   string        `yaml:"path"`
	Errors []variantSpec `yaml:"errors"`
}

type variantSpec struct {
	Code       string   `yaml:"code"`
	Categories []string `yaml:"categories"`
}

var builtinCategories = []category.Category{
	category.Auth,
	category.NotFound,
	category.Conflict,
	category.Throttling,
	category.Network,
	category.Server,
	category.Configuration,
	category.Parse,
}

// LoadCatalog reads a catalog document:
//
//	operations:
//	  - name: GetDatabase
//	    method: GET
//	    path: /organizations/{organization}/databases/{database}
//	    errors:
//	      - code: not_found
//	        categories: [NotFoundError]
//
// Every operation is validated as it is loaded.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(&file)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	catalog := &Catalog{operations: make(map[string]*DynamicOperation, len(file.Operations))}

	for _, spec := range file.Operations {
		op, err := spec.build()
		if err != nil {
			return nil, err
		}

		if _, ok := catalog.operations[op.Name]; ok {
			return nil, fmt.Errorf("catalog: %w: %s", ErrDuplicateOperation, op.Name)
		}

		catalog.operations[op.Name] = op
	}

	return catalog, nil
}

func (s operationSpec) build() (*DynamicOperation, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("catalog: %w (path %q)", ErrOperationNameMissing, s.Path)
	}

	method := strings.ToUpper(s.Method)
	if method == "" {
		method = "GET"
	}

	op := NewOperation[Fields, json.RawMessage](s.Name, method, s.Path)

	for _, v := range s.Errors {
		cats, err := parseCategories(v.Categories)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %s: %w", s.Name, v.Code, err)
		}

		op.Errors = append(op.Errors, codedVariant(s.Name, v.Code, op.PathFields, cats))
	}

	err := op.Validate()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	return op, nil
}

func codedVariant(operation, code string, pathFields []string, cats []category.Category) ErrorVariant[Fields] {
	return ErrorVariant[Fields]{
		Code: code,
		New: func(in Fields, message string) error {
			values := make(map[string]any, len(pathFields))
			for _, field := range pathFields {
				if value, ok := in[field]; ok {
					values[field] = value
				}
			}

			return &CodedError{
				Operation:  operation,
				Code:       code,
				Message:    message,
				PathValues: values,
				categories: cats,
			}
		},
	}
}

func parseCategories(names []string) ([]category.Category, error) {
	cats := make([]category.Category, 0, len(names))

	for _, name := range names {
		c := category.Category(name)
		if !slices.Contains(builtinCategories, c) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
		}

		cats = append(cats, c)
	}

	return cats, nil
}

// Operation returns the named operation.
func (c *Catalog) Operation(name string) (*DynamicOperation, error) {
	op, ok := c.operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	return op, nil
}

// Names lists the catalog's operations in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
