// Package identity derives the natural key that groups provider rows
// describing the same physical flight leg.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"flightsync/pkg/types"
)

const hashPrefix = "hash:"

// LegKey returns the grouping key of a record: flight code, key time and
// departure airport. Rows without both a code and a time fall back to a
// content hash so they stay distinct instead of colliding.
func LegKey(rec *types.IntermediateRecord) string {
	code := strings.ToUpper(rec.FlightKey())
	anchor := rec.KeyTime()

	if code == "" && anchor == nil {
		sum := sha256.Sum256(rec.Raw)
		return hashPrefix + hex.EncodeToString(sum[:])
	}

	var ts string
	if anchor != nil {
		ts = anchor.UTC().Format(time.RFC3339)
	}
	return code + "|" + ts + "|" + strings.ToUpper(rec.DepCode)
}
