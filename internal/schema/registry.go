package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"opgrid/internal/logging"
)

// DefaultExtension is the document extension used when none is configured.
const DefaultExtension = "yaml"

// Registry resolves schemas from a directory of documents. It does not cache;
// every call reads the registry afresh.
type Registry struct {
	fsys     fs.FS
	ext      string
	logger   *slog.Logger
	validate *validator.Validate
}

// Option customises a Registry.
type Option func(*Registry)

// WithExtension sets the document extension (without the leading dot).
func WithExtension(ext string) Option {
	return func(r *Registry) {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			r.ext = ext
		}
	}
}

// WithLogger attaches a logger for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a registry over fsys.
func New(fsys fs.FS, opts ...Option) *Registry {
	r := &Registry{
		fsys:     fsys,
		ext:      DefaultExtension,
		logger:   logging.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "schema")
	return r
}

// Open builds a registry over a directory on disk.
func Open(dir string, opts ...Option) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, registryError(dir, "open registry", err)
	}
	if !info.IsDir() {
		return nil, registryError(dir, "open registry", errors.New("not a directory"))
	}
	return New(os.DirFS(dir), opts...), nil
}

// Extension returns the configured document extension.
func (r *Registry) Extension() string {
	return r.ext
}

// fold applies Unicode case folding for filename comparison.
func fold(value string) string {
	return cases.Fold().String(value)
}

// Resolve loads the schema for name and kind. A nil or blank version selects
// the latest version present in the registry. Operator documents are
// returned with primitive references expanded.
func (r *Registry) Resolve(ctx context.Context, name string, kind Kind, version *string) (Schema, error) {
	if err := ctx.Err(); err != nil {
		return Schema{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Schema{}, &NotFoundError{Kind: kind}
	}

	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return Schema{}, registryError("", "read registry", err)
	}

	var (
		documentName string
		parsed       Version
	)
	if version != nil && strings.TrimSpace(*version) != "" {
		requested := strings.TrimSpace(*version)
		documentName = r.exactMatch(entries, name, kind, requested)
		if documentName == "" {
			return Schema{}, &NotFoundError{Name: name, Kind: kind, Version: requested}
		}
		parsed, _ = ParseVersion(requested)
	} else {
		documentName, parsed = r.latestMatch(entries, name, kind)
		if documentName == "" {
			return Schema{}, &NotFoundError{Name: name, Kind: kind}
		}
	}

	doc, err := r.loadDocument(documentName)
	if err != nil {
		return Schema{}, err
	}
	if Kind(doc.Kind) != kind {
		return Schema{}, registryError(documentName, fmt.Sprintf("document declares kind %s, filename says %s", doc.Kind, kind), nil)
	}
	if fold(strings.TrimSpace(doc.Name)) != fold(name) {
		return Schema{}, registryError(documentName, fmt.Sprintf("document declares name %q, filename says %q", doc.Name, name), nil)
	}

	schema := Schema{
		Name:        strings.TrimSpace(doc.Name),
		Kind:        kind,
		Version:     parsed,
		Source:      documentName,
		Description: strings.TrimSpace(doc.Description),
	}
	schema.Parameters, err = r.expand(ctx, documentName, doc)
	if err != nil {
		return Schema{}, err
	}

	r.logger.Debug("schema resolved",
		logging.String("schema", schema.Name),
		logging.String("kind", string(kind)),
		logging.String("version", parsed.String()),
		logging.String("document", documentName),
		logging.Int("parameters", len(schema.Parameters)),
	)
	return schema, nil
}

// ResolveOperator is Resolve for operator documents.
func (r *Registry) ResolveOperator(ctx context.Context, name string, version *string) (Schema, error) {
	return r.Resolve(ctx, name, KindOperator, version)
}

func (r *Registry) exactMatch(entries []fs.DirEntry, name string, kind Kind, version string) string {
	want := fold(fmt.Sprintf("%s_%s_%s.%s", name, kind, version, r.ext))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if fold(entry.Name()) == want {
			return entry.Name()
		}
	}
	return ""
}

func (r *Registry) latestMatch(entries []fs.DirEntry, name string, kind Kind) (string, Version) {
	prefix := fold(fmt.Sprintf("%s_%s_", name, kind))
	suffix := fold("." + r.ext)

	var (
		names    []string
		versions []Version
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		folded := fold(entry.Name())
		if !strings.HasPrefix(folded, prefix) || !strings.HasSuffix(folded, suffix) {
			continue
		}
		if len(folded) <= len(prefix)+len(suffix) {
			continue
		}
		version, err := ParseVersion(folded[len(prefix) : len(folded)-len(suffix)])
		if err != nil {
			r.logger.Debug("skipping registry document with unparseable version",
				logging.String("document", entry.Name()),
				logging.Error(err),
			)
			continue
		}
		names = append(names, entry.Name())
		versions = append(versions, version)
	}

	best, tied := selectLatest(versions)
	if best < 0 {
		return "", nil
	}
	if tied {
		logging.WarnWithContext(r.logger, "schema versions tie; keeping first document in directory order", "schema_version_tie",
			logging.String("schema", name),
			logging.String("kind", string(kind)),
			logging.String("document", names[best]),
			logging.String(logging.FieldErrorHint, "remove one of the equivalent version documents"),
			logging.String(logging.FieldImpact, "selected schema depends on directory order"),
		)
	}
	return names[best], versions[best]
}

func (r *Registry) loadDocument(documentName string) (document, error) {
	data, err := fs.ReadFile(r.fsys, documentName)
	if err != nil {
		return document{}, registryError(documentName, "read document", err)
	}
	doc, err := decodeDocument(data, r.validate)
	if err != nil {
		return document{}, registryError(documentName, "", err)
	}
	return doc, nil
}

// expand turns document parameters into specs, resolving primitive
// references through the registry.
func (r *Registry) expand(ctx context.Context, documentName string, doc document) ([]ParameterSpec, error) {
	specs := make([]ParameterSpec, 0, len(doc.Parameters))
	seen := make(map[string]struct{}, len(doc.Parameters))
	for i, param := range doc.Parameters {
		spec := param.spec()
		if param.isReference() {
			var version *string
			if v := strings.TrimSpace(param.Version); v != "" {
				version = &v
			}
			primitive, err := r.Resolve(ctx, strings.TrimSpace(param.Primitive), KindPrimitive, version)
			if err != nil {
				return nil, registryError(documentName, fmt.Sprintf("parameters[%d]: resolve primitive %q", i, param.Primitive), err)
			}
			spec = primitive.Parameters[0]
			spec.Mandatory = spec.Mandatory || param.Mandatory
			if len(param.Default) > 0 {
				spec.Default = append([]string(nil), param.Default...)
			}
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, registryError(documentName, fmt.Sprintf("parameters[%d]: duplicate parameter name %q", i, spec.Name), nil)
		}
		seen[spec.Name] = struct{}{}
		specs = append(specs, spec)
	}
	return specs, nil
}

// List enumerates every well-named document in the registry, ordered by
// name, kind and version.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, registryError("", "read registry", err)
	}
	suffix := fold("." + r.ext)
	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(fold(entry.Name()), suffix) {
			continue
		}
		base := entry.Name()[:len(entry.Name())-len("."+r.ext)]
		parsed, ok := parseEntryName(base)
		if !ok {
			continue
		}
		parsed.Document = entry.Name()
		out = append(out, parsed)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := fold(out[i].Name), fold(out[j].Name); a != b {
			return a < b
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Version.Compare(out[j].Version) < 0
	})
	return out, nil
}

func parseEntryName(base string) (Entry, bool) {
	versionSep := strings.LastIndexByte(base, '_')
	if versionSep <= 0 {
		return Entry{}, false
	}
	version, err := ParseVersion(base[versionSep+1:])
	if err != nil {
		return Entry{}, false
	}
	rest := base[:versionSep]
	kindSep := strings.LastIndexByte(rest, '_')
	if kindSep <= 0 {
		return Entry{}, false
	}
	kind, err := ParseKind(rest[kindSep+1:])
	if err != nil {
		return Entry{}, false
	}
	return Entry{Name: rest[:kindSep], Kind: kind, Version: version}, true
}
