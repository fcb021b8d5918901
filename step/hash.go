package step

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashInputs computes a stable content hash of a step's concrete input
// bindings, used as the cache key's input component. encoding/json sorts
// map[string]interface{} keys alphabetically, which is what makes this
// deterministic across calls with the same logical inputs.
func hashInputs(inputs map[string]interface{}) (string, error) {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
