// Package admission defines the canonical entities, raw feed records, error
// taxonomy and collaborator interfaces shared by the ingestion pipeline, the
// per-year storage layer and the query surface.
package admission
