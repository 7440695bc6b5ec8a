package payments

import (
	"sort"
	"strings"
)

// Both gateways bound what they accept alongside an order: Razorpay allows at
// most 15 notes, Stripe caps keys at 40 and values at 500 characters. The
// tightest limits apply to both so a checkout never fails on metadata alone.
const (
	maxMetadataEntries  = 15
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 500
)

// gatewayMetadata prepares order metadata for submission to a payment
// gateway: entries are trimmed, blank keys dropped, and oversized keys or
// values truncated. When more entries remain than a gateway accepts, the
// lexicographically first keys win so retries send the same subset.
func gatewayMetadata(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	trimmed := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if len(key) > maxMetadataKeyLen {
			key = key[:maxMetadataKeyLen]
		}
		if _, exists := trimmed[key]; !exists {
			keys = append(keys, key)
		}
		value = strings.TrimSpace(value)
		if len(value) > maxMetadataValueLen {
			value = value[:maxMetadataValueLen]
		}
		trimmed[key] = value
	}
	if len(trimmed) == 0 {
		return nil
	}

	sort.Strings(keys)
	if len(keys) > maxMetadataEntries {
		keys = keys[:maxMetadataEntries]
	}
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		result[key] = trimmed[key]
	}
	return result
}
