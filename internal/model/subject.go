// Package model holds the shared data types of the verification engine:
// subjects, methods, completions, the event journal, snapshots, protocol
// runs, and verifier records. It has no behavior beyond small helpers —
// the scoring, authorization, and orchestration packages operate on these
// types without owning them.
package model

// SubjectClass partitions subjects into the three account kinds the
// scoring model and method applicability table key off of.
type SubjectClass string

const (
	Individual   SubjectClass = "individual"
	Business     SubjectClass = "business"
	Organization SubjectClass = "organization"
)

// Subject identifies a registered platform participant. The id is
// opaque from the engine's point of view; callers mint it (typically a
// UUID) before the first command for that subject arrives.
type Subject struct {
	ID    string
	Class SubjectClass
}
