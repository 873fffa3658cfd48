package database

import "errors"

// ErrNotReady indicates the database has not answered a ping yet.
var ErrNotReady = errors.New("database not ready")
