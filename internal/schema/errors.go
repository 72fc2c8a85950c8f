package schema

import (
	"errors"
	"fmt"
	"strings"

	"opgrid/internal/services"
)

var (
	// ErrSchemaNotFound matches every NotFoundError.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrRegistry matches every RegistryError.
	ErrRegistry = errors.New("schema registry error")
)

// NotFoundError reports that no registry document matched a request.
type NotFoundError struct {
	Name    string
	Kind    Kind
	Version string
}

func (e *NotFoundError) Error() string {
	if strings.TrimSpace(e.Version) == "" {
		return fmt.Sprintf("schema not found: %s %s (any version)", e.Kind, e.Name)
	}
	return fmt.Sprintf("schema not found: %s %s version %s", e.Kind, e.Name, e.Version)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrSchemaNotFound, services.ErrNotFound}
}

// RegistryError reports an unreadable registry or a malformed document.
type RegistryError struct {
	Document string
	Reason   string
	Err      error
}

func (e *RegistryError) Error() string {
	var b strings.Builder
	b.WriteString("schema registry")
	if e.Document != "" {
		b.WriteString(": ")
		b.WriteString(e.Document)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RegistryError) Unwrap() []error {
	errs := []error{ErrRegistry, services.ErrConfiguration}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func registryError(document, reason string, err error) error {
	return &RegistryError{Document: document, Reason: reason, Err: err}
}
