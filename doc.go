// Package hatvec implements an embeddable, in-process vector memory index
// tailored to LLM conversational memory.
//
// It stores embedding vectors together with small opaque payloads and
// organizes them hierarchically by session -> document -> chunk, which lets
// a caller narrow a query from "which conversation" down to "which chunk"
// instead of only ever running a single flat nearest-neighbor scan.
//
// This root package holds the foundational types shared across the
// module: Point, Blob, Id, Config, the proximity functions, the ordering
// rule, and the error taxonomy. A narrow payload-store port (pkg/store)
// covers where chunk payloads live, a brute-force pkg/index backs exact
// k-NN search, pkg/hat holds the three-level tree that is this module's
// main contribution, pkg/container implements the self-describing binary
// record/batch formats used for transport, and pkg/engine wires all of
// these into the Engine type most callers use and holds the HATX file
// format used for persistence.
//
// Typical use:
//
//	eng := engine.New(hatvec.DefaultConfig(384))
//	id, err := eng.Place(vector, payload)
//	hits, err := eng.Near(query, 10)
//	err = eng.Save("memory.hatx")
package hatvec
