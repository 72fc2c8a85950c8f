// Package schema resolves versioned parameter schemas from a document
// registry.
//
// The registry is any fs.FS whose top-level entries are named
// <name>_<kind>_<version>.<ext>. Resolve matches filenames case-insensitively
// and, when no version is requested, selects the latest one by comparing
// zero-padded fixed-width keys built from every candidate's version fields.
// Documents are YAML; each is checked against a structural contract before
// it becomes a Schema. Operator documents may reference primitive documents
// instead of declaring parameters inline and are expanded during resolution.
package schema
