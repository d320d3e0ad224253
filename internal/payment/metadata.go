package payment

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

const (
	// MaxMetadataValueLength is the provider's limit on a single metadata value.
	MaxMetadataValueLength = 500

	orderItemsKey       = "order_items"
	orderItemsChunksKey = "order_items_chunks"
)

// EncodeOrderItems splits payload across order_items_0..N so that no value
// exceeds MaxMetadataValueLength bytes and every value is valid UTF-8.
func EncodeOrderItems(payload string) map[string]string {
	md := make(map[string]string)
	n := 0
	for start := 0; start < len(payload); {
		end := start + MaxMetadataValueLength
		if end >= len(payload) {
			end = len(payload)
		} else {
			// Never split a multi-byte rune across two values.
			for end > start && !utf8.RuneStart(payload[end]) {
				end--
			}
		}
		md[chunkKey(n)] = payload[start:end]
		n++
		start = end
	}
	md[orderItemsChunksKey] = strconv.Itoa(n)
	return md
}

// DecodeOrderItems reassembles a payload written by EncodeOrderItems. Sessions
// created before chunking carry the whole payload under order_items.
func DecodeOrderItems(md map[string]string) (string, error) {
	raw, ok := md[orderItemsChunksKey]
	if !ok {
		if legacy, ok := md[orderItemsKey]; ok && legacy != "" {
			return legacy, nil
		}
		return "", fmt.Errorf("%w: no order items in metadata", ErrMalformedEvent)
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: bad chunk count %q", ErrMalformedEvent, raw)
	}

	var payload []byte
	for i := 0; i < n; i++ {
		chunk, ok := md[chunkKey(i)]
		if !ok {
			return "", fmt.Errorf("%w: missing chunk %d of %d", ErrMalformedEvent, i, n)
		}
		payload = append(payload, chunk...)
	}
	return string(payload), nil
}

func chunkKey(i int) string {
	return orderItemsKey + "_" + strconv.Itoa(i)
}
