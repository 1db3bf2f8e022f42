package status

import (
	"fmt"
	"math/bits"
	"strings"
)

// NotReadyCategory is a set of independent reasons an entity cannot be recovered.
// Zero means nothing blocks recovery.
type NotReadyCategory uint32

const (
	InvalidVMName          NotReadyCategory = 1 << 0
	InvalidCopy            NotReadyCategory = 1 << 1
	MarkAsFailed           NotReadyCategory = 1 << 2
	InvalidSmartFolder     NotReadyCategory = 1 << 3
	V1IndexingNotSupported NotReadyCategory = 1 << 4
	LastBackupOutdated     NotReadyCategory = 1 << 5
	LastBackupNotReady     NotReadyCategory = 1 << 6
	ManagedIdentityEnabled NotReadyCategory = 1 << 7
	AutoscalingDisabled    NotReadyCategory = 1 << 8

	knownCategories NotReadyCategory = 1<<9 - 1
)

const categoryLabelSeparator = "|"

var categoryNames = map[NotReadyCategory]string{
	InvalidVMName:          "INVALID_VM_NAME",
	InvalidCopy:            "INVALID_COPY",
	MarkAsFailed:           "MARK_AS_FAILED",
	InvalidSmartFolder:     "INVALID_SMART_FOLDER",
	V1IndexingNotSupported: "V1_INDEXING_NOT_SUPPORTED",
	LastBackupOutdated:     "LAST_BACKUP_OUTDATED",
	LastBackupNotReady:     "LAST_BACKUP_NOT_READY",
	ManagedIdentityEnabled: "MANAGED_IDENTITY_ENABLED",
	AutoscalingDisabled:    "AUTOSCALING_DISABLED",
}

// ParseNotReadyCategory accepts any combination of known bits.
func ParseNotReadyCategory(code int64) (NotReadyCategory, error) {
	if code < 0 || code > int64(knownCategories) {
		return 0, &CodeError{Kind: "not-ready category", Code: code}
	}
	return NotReadyCategory(code), nil
}

func (c NotReadyCategory) Has(flag NotReadyCategory) bool {
	return flag != 0 && c&flag == flag
}

// Reasons decomposes the set into single flags in ascending bit order.
func (c NotReadyCategory) Reasons() []NotReadyCategory {
	var out []NotReadyCategory
	for rest := c & knownCategories; rest != 0; rest &= rest - 1 {
		out = append(out, NotReadyCategory(1)<<bits.TrailingZeros32(uint32(rest)))
	}
	return out
}

func (c NotReadyCategory) String() string {
	if c == 0 {
		return "NONE"
	}
	var names []string
	for _, r := range c.Reasons() {
		names = append(names, categoryNames[r])
	}
	if unknown := c &^ knownCategories; unknown != 0 {
		names = append(names, fmt.Sprintf("UNKNOWN(%d)", uint32(unknown)))
	}
	return strings.Join(names, categoryLabelSeparator)
}

// DecodeStrategy selects how a not-ready category with several bits set is read.
type DecodeStrategy int

const (
	// DecodeBitmask reports every set bit.
	DecodeBitmask DecodeStrategy = iota
	// DecodeStrict treats the code as a single enumeration value; combinations fail.
	DecodeStrict
	// DecodeFirstBit reports only the lowest set bit.
	DecodeFirstBit
)

var strategyNames = map[DecodeStrategy]string{
	DecodeBitmask:  "bitmask",
	DecodeStrict:   "strict",
	DecodeFirstBit: "first-bit",
}

func (s DecodeStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// ParseDecodeStrategy maps a configuration value to a strategy. Empty selects bitmask.
func ParseDecodeStrategy(value string) (DecodeStrategy, error) {
	if value == "" {
		return DecodeBitmask, nil
	}
	for s, name := range strategyNames {
		if strings.EqualFold(name, value) {
			return s, nil
		}
	}
	return DecodeBitmask, fmt.Errorf("unknown readiness decode strategy %q", value)
}

// Readiness is a decoded not-ready category.
type Readiness struct {
	Readiness RecoveryReadiness
	Category  NotReadyCategory
	Reasons   []NotReadyCategory
}

// Label is READY or the reason names joined by "|".
func (r Readiness) Label() string {
	if r.Readiness == ReadinessReady {
		return readinessNames[ReadinessReady]
	}
	names := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		names = append(names, categoryNames[reason])
	}
	return strings.Join(names, categoryLabelSeparator)
}

// DecodeReadiness turns the raw recoveryStatusNotReadyCategory value into a readiness.
func DecodeReadiness(raw int64, strategy DecodeStrategy) (Readiness, error) {
	if raw == 0 {
		return Readiness{Readiness: ReadinessReady}, nil
	}

	category, err := ParseNotReadyCategory(raw)
	if err != nil {
		return Readiness{}, err
	}

	reasons := category.Reasons()
	switch strategy {
	case DecodeStrict:
		if len(reasons) != 1 {
			return Readiness{}, &CodeError{Kind: "not-ready category", Code: raw}
		}
	case DecodeFirstBit:
		reasons = reasons[:1]
		category = reasons[0]
	case DecodeBitmask:
	default:
		return Readiness{}, fmt.Errorf("unknown readiness decode strategy %d", int(strategy))
	}

	return Readiness{
		Readiness: ReadinessNotReady,
		Category:  category,
		Reasons:   reasons,
	}, nil
}
