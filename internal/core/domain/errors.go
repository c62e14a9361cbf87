package domain

import "errors"

// ErrDuplicateKey is returned by repositories when an insert collides with a
// uniqueness constraint (user email, audit event id).
var ErrDuplicateKey = errors.New("duplicate key")
