// CLAUDE:SUMMARY Sentinel errors for tabkeeper operations, including re-exports of the internal package sentinels.
package tabkeeper

import (
	"errors"

	"github.com/hazyhaar/tabkeeper/internal/registry"
	"github.com/hazyhaar/tabkeeper/internal/shield"
	"github.com/hazyhaar/tabkeeper/internal/snapshot"
)

// ErrInvalidName is returned for session names that are empty, longer
// than 128 bytes, or contain '/' or control characters.
var ErrInvalidName = errors.New("tabkeeper: invalid session name")

// ErrInvalidInput is returned when operation arguments fail validation.
var ErrInvalidInput = errors.New("tabkeeper: invalid input")

// Sentinels from the internal packages, re-exported so callers can match
// them without importing internal paths.
var (
	// ErrPageNotFound is returned by operations that name a session with
	// no live page and do not create one.
	ErrPageNotFound = registry.ErrNotFound
	// ErrNoSnapshot is returned when a ref is used on a page that was
	// never captured.
	ErrNoSnapshot = snapshot.ErrNoSnapshot
	// ErrRefNotFound is returned for refs absent from the page's current
	// snapshot, whether stale or never issued.
	ErrRefNotFound = snapshot.ErrRefNotFound
	// ErrPathTraversal is returned when an artifact path escapes the
	// configured artifacts directory.
	ErrPathTraversal = shield.ErrPathTraversal
)
