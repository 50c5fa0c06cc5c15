// Package idempotency maps request fingerprints to submission IDs for a
// bounded window so that replayed intake bodies return the original ID.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DefaultWindow is how long a fingerprint stays bound to its submission.
const DefaultWindow = 300 * time.Second

// Lookup is the result of LookupOrReserve. When Existing is false the caller
// holds a reservation and must Commit or Release it.
type Lookup struct {
	Existing     bool
	SubmissionID string
}

// Entry binds a fingerprint to a submission from IssuedAt onward.
type Entry struct {
	Fingerprint  string
	SubmissionID string
	IssuedAt     time.Time
}

// Expired reports whether the entry is outside the window at now.
func (e Entry) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(e.IssuedAt) >= window
}

// Cache is the duplicate-suppression store consulted on intake.
//
// Concurrent LookupOrReserve calls for the same fingerprint must produce at
// most one reservation; the others wait and then observe the committed ID.
type Cache interface {
	LookupOrReserve(ctx context.Context, fingerprint string, now time.Time) (Lookup, error)
	Commit(ctx context.Context, fingerprint, submissionID string, now time.Time) error
	Release(ctx context.Context, fingerprint string) error
}

// Fingerprint derives the stable fingerprint of an intake body. Item order is
// significant: [1,2] and [2,1] are different submissions.
func Fingerprint(itemIDs []int, priority string) string {
	// Fields are declared in key order so the encoding is canonical.
	body := struct {
		ItemIDs  []int  `json:"item_ids"`
		Priority string `json:"priority"`
	}{ItemIDs: itemIDs, Priority: priority}
	if body.ItemIDs == nil {
		body.ItemIDs = []int{}
	}
	data, _ := json.Marshal(body)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
