package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

type HashAlgo string

const (
	HashAlgoSHA256 = "sha256"
)

// HashBytes returns the hash of bytes as a hex string using the specified algorithm.
// Supported algorithms: "sha256".
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	switch algo {
	case HashAlgoSHA256:
		return hashBytesSha256(data), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

func hashBytesSha256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// DomainShard returns a stable shard index for domain in [0, shardCount).
// It takes the first 8 bytes of md5(domain), reads them as a big-endian
// uint64, and reduces mod shardCount. md5 is used (not a language-default
// hash) so the mapping is identical across processes, runs, and restarts.
func DomainShard(domain string, shardCount int) (int, error) {
	if shardCount <= 0 {
		return 0, fmt.Errorf("hashutil: shardCount must be positive, got %d", shardCount)
	}
	sum := md5.Sum([]byte(domain))
	hi64 := binary.BigEndian.Uint64(sum[:8])
	return int(hi64 % uint64(shardCount)), nil
}

// ShardBucket returns a 2-hex-digit directory bucket name for domain,
// used to keep the frontier file tree fanned out below any single
// directory's entry-count limits. Bucket is the low byte of md5(domain).
func ShardBucket(domain string) string {
	sum := md5.Sum([]byte(domain))
	return hex.EncodeToString(sum[len(sum)-1:])
}
