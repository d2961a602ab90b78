package partition

import (
	"errors"
	"fmt"
)

// ErrInvalidSlug is returned when a partition name normalizes to nothing usable.
var ErrInvalidSlug = errors.New("invalid partition slug")

// NotFoundError reports that no index/mapping pair exists for a slug.
type NotFoundError struct {
	Slug string
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("partition %q not found", e.Slug)
	}
	return fmt.Sprintf("partition %q not found: %s does not exist", e.Slug, e.Path)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
