package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// ContentHash is the hex sha256 of a file's bytes.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}

// EngineKey hashes everything besides file content that influences a
// summary: query assets, rule scripts and analyzer options. Options are
// sorted so map iteration order does not matter.
func EngineKey(assetsHash, scriptsHash string, options map[string]string) string {
	h := sha256.New()
	fmt.Fprintf(h, "assets:%s\n", assetsHash)
	fmt.Fprintf(h, "scripts:%s\n", scriptsHash)

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "option:%s=%s\n", k, strings.TrimSpace(options[k]))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
