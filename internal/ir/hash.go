package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainExecution = "noderepo/execution/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ExecutionKey identifies one invocation of a behaviour with one argument
// tuple. Two events that produce the same key within a transaction are the
// same execution for first-event and commit-time de-duplication.
func ExecutionKey(behaviourID, policy string, args map[string]any) (string, error) {
	obj := map[string]any{
		"behaviour": behaviourID,
		"policy":    policy,
		"args":      args,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ExecutionKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainExecution, canonical), nil
}

// MustExecutionKey is like ExecutionKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustExecutionKey(behaviourID, policy string, args map[string]any) string {
	key, err := ExecutionKey(behaviourID, policy, args)
	if err != nil {
		panic(err)
	}
	return key
}
