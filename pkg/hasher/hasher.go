package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const blockSize = 64 * 1024

// Hash returns the hex SHA-256 digest of the file's full byte content.
// The file is read in fixed-size blocks so large uploads never sit in
// memory whole. Identical bytes produce identical hashes regardless of
// filename, which is what makes the digest usable as a document identity.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
