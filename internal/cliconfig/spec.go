// Package cliconfig parses the CLI-facing grammars defined in spec.md §6:
// the RRset data specifier ("TYPE:item1,item2,..." or bare "TYPE") used as
// the update command's second positional argument.
package cliconfig

import (
	"fmt"
	"strings"

	"github.com/tdns-go/tdns/internal/rrdata"
)

// DataSpec is a parsed RRset data specifier.
type DataSpec struct {
	Type  rrdata.Type
	Items []rrdata.RData // empty for the bare-TYPE "whole RRset" form
}

// ParseDataSpec parses "TYPE:item1,item2,..." or a bare "TYPE". Supported
// types for item data are A, AAAA, and TXT, per spec.md §6 ("any record
// types other than A, AAAA, and TXT for user-facing data syntax" are a
// non-goal). TXT accepts exactly one item, since commas inside it are not
// representable in this grammar.
func ParseDataSpec(s string) (DataSpec, error) {
	typeName, rest, hasColon := strings.Cut(s, ":")
	typ, err := rrdata.ParseType(typeName)
	if err != nil {
		return DataSpec{}, fmt.Errorf("cliconfig: %w", err)
	}

	if !hasColon {
		return DataSpec{Type: typ}, nil
	}
	if rest == "" {
		return DataSpec{}, fmt.Errorf("cliconfig: %q has a colon but no items", s)
	}

	parts := strings.Split(rest, ",")
	items := make([]rrdata.RData, 0, len(parts))

	switch typ {
	case rrdata.TypeA:
		for _, p := range parts {
			item, err := rrdata.NewA(p)
			if err != nil {
				return DataSpec{}, fmt.Errorf("cliconfig: %w", err)
			}
			items = append(items, item)
		}
	case rrdata.TypeAAAA:
		for _, p := range parts {
			item, err := rrdata.NewAAAA(p)
			if err != nil {
				return DataSpec{}, fmt.Errorf("cliconfig: %w", err)
			}
			items = append(items, item)
		}
	case rrdata.TypeTXT:
		if len(parts) != 1 {
			return DataSpec{}, fmt.Errorf("cliconfig: TXT accepts exactly one item (commas are not representable); got %d", len(parts))
		}
		items = append(items, rrdata.NewTXT(parts[0]))
	default:
		return DataSpec{}, fmt.Errorf("cliconfig: unsupported data type %q for a value specifier (only A, AAAA, TXT carry item data)", typeName)
	}

	return DataSpec{Type: typ, Items: items}, nil
}
