// Package update implements the Update Builder and TSIG Signer (spec.md
// §4.5): translating one declarative update operation into an RFC 2136
// UPDATE message, optionally TSIG-signed, built entirely on top of
// github.com/miekg/dns's message types.
package update

import (
	"github.com/tdns-go/tdns/internal/rrdata"
)

// OperationKind selects which RFC 2136 shape to build, per spec.md §3.
type OperationKind int

const (
	// Create requires the prerequisite "no RRset of this type at this
	// name" and adds the new RRset.
	Create OperationKind = iota
	// Append adds records to an existing RRset with no prerequisite.
	Append
	// DeleteRRset removes all records of a given (name, type).
	DeleteRRset
	// DeleteName removes all records at a given name.
	DeleteName
	// DeleteRecords removes specific RData items from an RRset.
	DeleteRecords
)

// Spec is the declarative operation plus target RRset passed to Build.
type Spec struct {
	Zone  string
	Name  string
	Type  rrdata.Type
	TTL   uint32
	Items []rrdata.RData
	Kind  OperationKind
}
