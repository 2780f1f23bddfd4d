// Package core provides the foundational domain types used across the
// roundtable engine:
//
//   - Message (immutable routed envelope with kind + wire Record)
//   - Observer events and the synchronous best-effort Publisher
//   - Unique id generation shared by messages and events
//
// The package intentionally keeps implementation concerns (routing, agent
// reasoning, orchestration) out of scope so higher packages can depend on a
// small stable surface without cyclic imports.
package core
