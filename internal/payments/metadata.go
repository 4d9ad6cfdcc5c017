package payments

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// receiptMetadataKey is set by providers from IntentRequest.ReceiptRef.
const receiptMetadataKey = "receipt"

const (
	maxMetadataEntries  = 49
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 500
)

// normalizeMetadata trims intent metadata and enforces PSP limits. Entries with empty keys or
// values are dropped; the receipt key is reserved for the order reference.
func normalizeMetadata(values map[string]string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		switch {
		case key == receiptMetadataKey:
			return nil, fmt.Errorf("%w: metadata key %q is reserved", ErrInvalidRequest, key)
		case utf8.RuneCountInString(key) > maxMetadataKeyLen || strings.ContainsAny(key, "[]"):
			return nil, fmt.Errorf("%w: metadata key %q is invalid", ErrInvalidRequest, key)
		case utf8.RuneCountInString(value) > maxMetadataValueLen:
			return nil, fmt.Errorf("%w: metadata value for %q exceeds %d characters", ErrInvalidRequest, key, maxMetadataValueLen)
		}
		result[key] = value
	}
	if len(result) > maxMetadataEntries {
		return nil, fmt.Errorf("%w: at most %d metadata entries are allowed", ErrInvalidRequest, maxMetadataEntries)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}
