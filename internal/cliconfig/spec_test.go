package cliconfig

import (
	"testing"

	"github.com/tdns-go/tdns/internal/rrdata"
)

func TestParseDataSpecA(t *testing.T) {
	spec, err := ParseDataSpec("A:10.1.2.3,10.1.2.4")
	if err != nil {
		t.Fatalf("ParseDataSpec: %v", err)
	}
	if spec.Type != rrdata.TypeA || len(spec.Items) != 2 {
		t.Fatalf("spec = %+v", spec)
	}
}

func TestParseDataSpecTXTSingleItem(t *testing.T) {
	spec, err := ParseDataSpec("TXT:hello world")
	if err != nil {
		t.Fatalf("ParseDataSpec: %v", err)
	}
	if len(spec.Items) != 1 || spec.Items[0].Txt[0] != "hello world" {
		t.Fatalf("spec = %+v", spec)
	}
}

func TestParseDataSpecTXTRejectsComma(t *testing.T) {
	if _, err := ParseDataSpec("TXT:a,b"); err == nil {
		t.Fatalf("expected an error: commas are not representable in TXT specifiers")
	}
}

func TestParseDataSpecBareType(t *testing.T) {
	spec, err := ParseDataSpec("A")
	if err != nil {
		t.Fatalf("ParseDataSpec: %v", err)
	}
	if spec.Type != rrdata.TypeA || len(spec.Items) != 0 {
		t.Fatalf("spec = %+v", spec)
	}
}

func TestParseDataSpecRejectsUnknownType(t *testing.T) {
	if _, err := ParseDataSpec("MX:10 mail.example.org"); err == nil {
		t.Fatalf("expected an error for an unsupported type")
	}
}

func TestParseDataSpecRejectsEmptyItemList(t *testing.T) {
	if _, err := ParseDataSpec("A:"); err == nil {
		t.Fatalf("expected an error for a colon with no items")
	}
}
