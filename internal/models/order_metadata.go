package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderMetadataVersion is the schema version written at checkout time.
const OrderMetadataVersion = 1

var ErrInvalidOrderMetadata = errors.New("invalid order metadata")

// OrderLine is the validated cart line attached to a payment session and read
// back when the session completes.
type OrderLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderMetadata struct {
	Version int         `json:"v"`
	Items   []OrderLine `json:"items"`
}

func NewOrderMetadata(lines []OrderLine) OrderMetadata {
	return OrderMetadata{Version: OrderMetadataVersion, Items: lines}
}

func (m OrderMetadata) Marshal() (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal order metadata: %w", err)
	}
	return string(b), nil
}

func (m OrderMetadata) Validate() error {
	if m.Version != OrderMetadataVersion && m.Version != 0 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidOrderMetadata, m.Version)
	}
	if len(m.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrderMetadata)
	}
	for i, line := range m.Items {
		switch {
		case strings.TrimSpace(line.ID) == "":
			return fmt.Errorf("%w: item %d has no id", ErrInvalidOrderMetadata, i)
		case strings.TrimSpace(line.Name) == "":
			return fmt.Errorf("%w: item %d has no name", ErrInvalidOrderMetadata, i)
		case line.Quantity <= 0:
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidOrderMetadata, i, line.Quantity)
		case line.Price.IsNegative():
			return fmt.Errorf("%w: item %d has negative price", ErrInvalidOrderMetadata, i)
		}
	}
	return nil
}

// ParseOrderMetadata decodes a versioned payload. A bare JSON array, as written
// by older checkouts, is accepted as version 0.
func ParseOrderMetadata(raw string) (*OrderMetadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidOrderMetadata)
	}

	var m OrderMetadata
	if strings.HasPrefix(raw, "[") {
		if err := decodeStrict(raw, &m.Items); err != nil {
			return nil, err
		}
	} else {
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		if m.Version != OrderMetadataVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidOrderMetadata, m.Version)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrderMetadata, err)
	}
	return nil
}
