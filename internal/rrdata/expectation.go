package rrdata

// ExpectationKind discriminates the three declarative target shapes the
// propagation monitor can evaluate, per spec.md §3.
type ExpectationKind int

const (
	// Is requires the RRset at (Name, Type) to equal Items exactly.
	Is ExpectationKind = iota
	// Absent requires no records to exist at (Name, Type).
	Absent
	// Not requires the RRset at (Name, Type) to differ from Items, or be
	// absent entirely. Used after a delete when the caller doesn't know (or
	// care about) the post-delete value.
	Not
)

// Expectation is the declarative post-condition the propagation monitor
// evaluates against every authority endpoint.
type Expectation struct {
	Kind  ExpectationKind
	Name  string // canonical lowercase, fqdn
	Type  Type
	Items []RData // meaningful for Is and Not
}

// IsExpectation returns an Is expectation for the given RRset.
func IsExpectation(name string, typ Type, items ...RData) Expectation {
	return Expectation{Kind: Is, Name: CanonicalName(name), Type: typ, Items: items}
}

// AbsentExpectation returns an Absent expectation for (name, type).
func AbsentExpectation(name string, typ Type) Expectation {
	return Expectation{Kind: Absent, Name: CanonicalName(name), Type: typ}
}

// NotExpectation returns a Not expectation: the observed RRset must differ
// from items, or the name must be absent.
func NotExpectation(name string, typ Type, items ...RData) Expectation {
	return Expectation{Kind: Not, Name: CanonicalName(name), Type: typ, Items: items}
}

// wantedSet returns the Expectation's declared RRset, for Equal comparisons.
func (e Expectation) wantedSet() RRset {
	return RRset{Name: e.Name, Type: e.Type, Items: e.Items}
}
