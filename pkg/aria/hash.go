// Package aria implements the tenant registry: one SQLite-backed store per
// entity kind (agents, tools, tasks, cron functions, memories, pipelines,
// networks, feeds, containers), each built on the generic engine in
// pkg/registry.
package aria

import (
	"fmt"
	"hash/fnv"
)

// handlerHash derives the integrity hash recorded alongside an Agent or
// Tool's handler code. It is a 64-bit FNV-1a digest of the source, not a
// cryptographic hash — the hash only needs to detect unintentional drift
// between what was uploaded and what is cached, not resist tampering.
func handlerHash(code string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(code))
	return h.Sum64()
}

func hashHex(code string) string {
	return fmt.Sprintf("%016x", handlerHash(code))
}

func hashFromHex(hex string) uint64 {
	var v uint64
	fmt.Sscanf(hex, "%016x", &v)
	return v
}
