package delta

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/minio/highwayhash"
)

// hashKey is the fixed HighwayHash key. Hashes are compared only against
// hashes produced by this package, so the key never rotates.
var hashKey = []byte("pipeflow-delta-content-hashing!!")

// ContentHash returns the canonical 128-bit hash of a content value as a hex
// string.
//
// The value is serialized to JSON and re-normalized through a generic
// decode/encode round trip, which sorts map keys recursively and reduces
// structs and maps to the same representation. Equal hashes imply equal
// content for change-detection purposes.
func ContentHash(content any) (string, error) {
	canonical, err := canonicalJSON(content)
	if err != nil {
		return "", err
	}
	sum := highwayhash.Sum128(canonical, hashKey)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON produces a byte-stable JSON encoding of value: map keys are
// emitted sorted (encoding/json sorts map keys) and struct values are first
// reduced to maps so field order cannot leak into the encoding.
func canonicalJSON(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("content is not serializable: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize content: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize content: %w", err)
	}
	return canonical, nil
}
