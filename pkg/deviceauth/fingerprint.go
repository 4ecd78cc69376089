package deviceauth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives a stable, non-secret identifier from the install
// identity and coarse client attributes. It is used for deduplication and
// telemetry only, never as a credential.
func Fingerprint(installID, clientSignal string) (string, error) {
	if installID == "" {
		return "", ErrInvalidInput
	}
	sum := sha256.Sum256([]byte(installID + "\n" + clientSignal))
	return hex.EncodeToString(sum[:]), nil
}
