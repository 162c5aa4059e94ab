// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "US"

// Normalizer formats numbers relative to a default region.
type Normalizer struct {
	region string
}

// NewNormalizer creates a Normalizer for the given ISO 3166 region.
func NewNormalizer(region string) Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return Normalizer{region: region}
}

// E164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func (n Normalizer) E164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, n.regionOrDefault())
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Plausible reports whether input parses as a phone number at all.
func (n Normalizer) Plausible(input string) bool {
	number, err := phonenumbers.Parse(strings.TrimSpace(input), n.regionOrDefault())
	if err != nil {
		return false
	}
	return phonenumbers.IsPossibleNumber(number)
}

func (n Normalizer) regionOrDefault() string {
	if n.region == "" {
		return DefaultRegion
	}
	return n.region
}

// NormalizeE164 formats a phone number to E.164 using the default region.
func NormalizeE164(input string) string {
	return NewNormalizer(DefaultRegion).E164(input)
}
