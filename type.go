package softtx

import "fmt"

// Type selects the delivery strategy for a transaction log.
type Type int16

const (
	// TypeAny matches every type in Criteria and executor configuration.
	TypeAny Type = 0
	// TypeBestEffortsDelivery replays the failed statement until it succeeds or the retry budget runs out.
	TypeBestEffortsDelivery Type = 1
	// TypeTryConfirmCancel marks logs owned by a try-confirm-cancel coordinator.
	TypeTryConfirmCancel Type = 2
)

const (
	typeNameBED = "BestEffortsDelivery"
	typeNameTCC = "TryConfirmCancel"
)

// String returns the canonical type name.
func (t Type) String() string {
	switch t {
	case TypeBestEffortsDelivery:
		return typeNameBED
	case TypeTryConfirmCancel:
		return typeNameTCC
	default:
		return fmt.Sprintf("Type(%d)", int16(t))
	}
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	return t == TypeBestEffortsDelivery || t == TypeTryConfirmCancel
}

// ParseType parses a canonical type name or its short alias (bed, tcc).
func ParseType(value string) (Type, error) {
	switch value {
	case typeNameBED, "bed", "BED":
		return TypeBestEffortsDelivery, nil
	case typeNameTCC, "tcc", "TCC":
		return TypeTryConfirmCancel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, value)
	}
}
