// Package domain defines the core domain types and interfaces.
//
// This package contains shared types and cross-cutting interfaces only.
// No implementation code - just contracts. Prevents circular imports by
// keeping interfaces on the consumer side.
package domain
