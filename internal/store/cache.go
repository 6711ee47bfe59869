package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CodeVersion is mixed into every key so artifacts from an older chunker or
// matcher are never reused
const CodeVersion = "shockeval:v1"

// Cache is a byte-level key/value layer
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a content address for an artifact of the given kind from the
// inputs that determine it
func Key(kind string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(CodeVersion)
	for _, p := range parts {
		b.WriteByte(0)
		fmt.Fprintf(&b, "%v", p)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return kind + "-" + hex.EncodeToString(sum[:])
}

// NopCache stores nothing
type NopCache struct{}

func (NopCache) Get(string) ([]byte, bool)                { return nil, false }
func (NopCache) Set(string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(string) error                      { return nil }
func (NopCache) Clear() error                             { return nil }
