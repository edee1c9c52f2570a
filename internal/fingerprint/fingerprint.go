// Package fingerprint produces stable content hashes for audit records.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// #region of
// Of returns the hex sha256 of v's canonical encoding.
//
// The canonical form is JSON with object keys sorted at every depth. Values are
// round-tripped through a generic decode so struct field order does not leak
// into the hash. Anything json cannot encode hashes the error text instead.
func Of(v any) string {
	raw, err := Canonical(v)
	if err != nil {
		raw = []byte(fmt.Sprintf("fingerprint-error:%v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Canonical returns the sorted-key JSON encoding of v.
func Canonical(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(first, &generic); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal: %w", err)
	}
	return out, nil
}

// #endregion of
