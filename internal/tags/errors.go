package tags

import "errors"

// Domain-specific errors for tag file loading.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidFormat is returned when the tag file is not valid YAML.
	ErrInvalidFormat = errors.New("tags: invalid tag file format")

	// ErrInvalidDefinition is returned when a tag entry fails validation
	// (duplicate path or node, empty node id, unsupported type).
	ErrInvalidDefinition = errors.New("tags: invalid tag definition")
)
