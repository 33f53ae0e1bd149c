package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
)

// Archive writes raw publisher payloads to a blob store under
// <prefix>/<year>/<region|index>/<kind>-<sha256>.<ext>.
type Archive struct {
	blobs  admission.BlobStore
	hasher admission.Hasher
	prefix string
}

// NewArchive builds an Archive. An empty prefix defaults to "raw".
func NewArchive(blobs admission.BlobStore, hasher admission.Hasher, prefix string) (*Archive, error) {
	if blobs == nil || hasher == nil {
		return nil, errors.New("archive requires a blob store and a hasher")
	}
	if prefix == "" {
		prefix = "raw"
	}
	return &Archive{blobs: blobs, hasher: hasher, prefix: prefix}, nil
}

// Save stores resp.Body and returns the blob URI.
func (a *Archive) Save(ctx context.Context, year int, regionCode, kind string, resp admission.FetchResponse) (string, error) {
	digest, err := a.hasher.Hash(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	key := a.Key(year, regionCode, kind, digest)
	contentType := resp.ContentType
	if contentType == "" {
		contentType = contentTypeFor(kind)
	}
	uri, err := a.blobs.PutObject(ctx, key, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return uri, nil
}

// Key returns the object path for one payload.
func (a *Archive) Key(year int, regionCode, kind, digest string) string {
	scope := regionCode
	if scope == "" {
		scope = kindIndex
	}
	ext := "json"
	if kind == kindIndex {
		ext = "html"
	}
	return path.Join(a.prefix, strconv.Itoa(year), scope, fmt.Sprintf("%s-%s.%s", kind, digest, ext))
}

func contentTypeFor(kind string) string {
	if kind == kindIndex {
		return "text/html; charset=utf-8"
	}
	return "application/json"
}
