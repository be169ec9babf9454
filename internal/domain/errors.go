package domain

import "errors"

// ErrDispatchFailed wraps carrier errors from outbound sends so callers can
// distinguish a dispatch failure from a persistence one.
var ErrDispatchFailed = errors.New("delivery service dispatch failed")
