// Package checksum computes file digests for verifying downloads.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"
)

// BlockSize is the read size used while hashing.
const BlockSize = 8 << 20 // 8 MiB

// DefaultAlgorithm is used when no algorithm is named.
const DefaultAlgorithm = "md5"

// ErrUnsupportedAlgorithm is returned for algorithm names Sum does not know.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum hashes the file at path and returns the algorithm name and the hex
// digest. An empty algo means DefaultAlgorithm.
func Sum(path, algo string) (name, digest string, err error) {
	name = strings.ToLower(algo)
	if name == "" {
		name = DefaultAlgorithm
	}
	newHash, ok := algorithms[name]
	if !ok {
		return "", "", fmt.Errorf("checksum: %w %q", ErrUnsupportedAlgorithm, algo)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("checksum: %w", err)
	}
	defer f.Close()

	h := newHash()
	buf := make([]byte, BlockSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("checksum: read %s: %w", path, err)
		}
	}
	return name, hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at path has the expected hex digest.
func Verify(path, algo, expected string) (bool, error) {
	_, digest, err := Sum(path, algo)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(digest, strings.TrimSpace(expected)), nil
}
