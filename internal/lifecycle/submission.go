package lifecycle

import (
	"context"
	"log/slog"

	"opgrid/internal/descriptor"
	"opgrid/internal/logging"
	"opgrid/internal/params"
	"opgrid/internal/schema"
	"opgrid/internal/services"
)

// SchemaResolver finds the operator schema for a descriptor.
type SchemaResolver interface {
	ResolveOperator(ctx context.Context, name string, version *string) (schema.Schema, error)
}

// Submission is a descriptor that passed parsing, schema resolution and
// parameter validation. Nothing has run yet.
type Submission struct {
	Descriptor descriptor.Descriptor
	Schema     schema.Schema
	Params     params.Resolved
}

// Operator returns the operator name.
func (s Submission) Operator() string {
	return s.Descriptor.Operator()
}

// PrepareOptions tunes Prepare.
type PrepareOptions struct {
	// Version pins the schema version; nil selects the latest.
	Version       *string
	LegacyNumeric bool
	Logger        *slog.Logger
}

// Prepare runs the submission path: parse, resolve the operator schema and
// validate every parameter. Any failure is returned before a job exists.
func Prepare(ctx context.Context, raw string, resolver SchemaResolver, opts PrepareOptions) (Submission, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	d, err := descriptor.Parse(raw)
	if err != nil {
		return Submission{}, err
	}
	name := d.Operator()
	if name == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "lifecycle", "prepare",
			"descriptor does not name an operator ("+descriptor.NameOperator+"=...)", nil)
	}

	s, err := resolver.ResolveOperator(ctx, name, opts.Version)
	if err != nil {
		return Submission{}, err
	}

	resolved, err := params.Validate(d, s, params.LegacyNumeric(opts.LegacyNumeric))
	if err != nil {
		return Submission{}, err
	}
	for _, w := range resolved.Warnings() {
		logging.WarnWithContext(logger, "parameter adjusted", "parameter_adjusted",
			logging.Operator(name),
			logging.String("parameter", w.Parameter),
			logging.String("detail", w.Message),
			logging.String(logging.FieldImpact, "the job runs with the adjusted value"),
			logging.String(logging.FieldErrorHint, "fix the descriptor to match schema "+s.Source),
		)
	}

	return Submission{Descriptor: d, Schema: s, Params: resolved}, nil
}
