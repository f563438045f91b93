// Package agent provides the strong identifier types and agent-tree helpers
// shared across every runtime component (C1-C10). Nothing in this package
// depends on tools, planning, or transport; it is the lowest leaf in the
// module's dependency graph.
package agent

// Ident is the strong type for fully qualified agent identifiers (for example
// "weather_assistant" or "support.triage"). Use this type instead of a bare
// string when referencing agent templates in maps or APIs to avoid mixing
// them with free-form strings.
type Ident string

// ID is the strong type for a single running agent instance within a run's
// agent tree (spec.md §3: "agentId hierarchy is a tree rooted at the main
// agent"). It is distinct from Ident: Ident names an AgentTemplate, ID names
// one spawned instance of that template.
type ID string

// RunID identifies one top-level prompt handled by the main agent plus all of
// its descendants (spec.md Glossary: "Run").
type RunID string
