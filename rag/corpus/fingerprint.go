// Package corpus manages fingerprint-scoped document indexing and lookup.
//
// A corpus fingerprint identifies the exact set of knowledge sources a run
// retrieves against. Two runs over the same uploads share one index; adding
// or removing a source yields a new fingerprint and a fresh index.
package corpus

import (
	"sort"
	"strings"

	"github.com/AiQura/ama-app/rag/document"
)

// DefaultFingerprint is used when a run has no knowledge sources attached.
const DefaultFingerprint = "default"

// maxFingerprintLen keeps fingerprints inside the store's corpus column.
const maxFingerprintLen = 52

// Fingerprint derives the corpus identifier for a set of sources. Source
// order does not matter; the same set always maps to the same fingerprint.
func Fingerprint(sources []document.Source) string {
	if len(sources) == 0 {
		return DefaultFingerprint
	}
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return DefaultFingerprint
	}
	sort.Strings(ids)
	fp := strings.Join(ids, "_")
	if len(fp) > maxFingerprintLen {
		fp = fp[:maxFingerprintLen]
	}
	return fp
}
