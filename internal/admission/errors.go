package admission

import "errors"

var (
	// ErrSourceUnavailable reports a non-success response or an unreachable publisher.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload reports a feed that does not match the expected shape,
	// or a mandatory numeric field that does not parse.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrDuplicateKey reports an insertion conflict.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStorageOpen reports a storage unit that could not be opened or created.
	ErrStorageOpen = errors.New("storage open failure")
	// ErrNotFound reports an unknown year, region, school or offer.
	ErrNotFound = errors.New("not found")
)
