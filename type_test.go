package softtx

import (
	"errors"
	"testing"
)

func TestTypeRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeBestEffortsDelivery, TypeTryConfirmCancel} {
		parsed, err := ParseType(typ.String())
		if err != nil {
			t.Fatalf("parse %s: %v", typ, err)
		}
		if parsed != typ {
			t.Fatalf("expected %s, got %s", typ, parsed)
		}
	}
}

func TestParseTypeAliases(t *testing.T) {
	if typ, err := ParseType("bed"); err != nil || typ != TypeBestEffortsDelivery {
		t.Fatalf("unexpected result %v, %v", typ, err)
	}
	if typ, err := ParseType("TCC"); err != nil || typ != TypeTryConfirmCancel {
		t.Fatalf("unexpected result %v, %v", typ, err)
	}
	if _, err := ParseType("saga"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestTypeStringUnknown(t *testing.T) {
	if got := Type(7).String(); got != "Type(7)" {
		t.Fatalf("unexpected name %q", got)
	}
	if Type(7).Valid() {
		t.Fatalf("unknown type must be invalid")
	}
}
