package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// scanJSON decodes a JSONB column into dest.
func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}

// valueJSON encodes v as a JSON string so lib/pq sends it as text, not bytea.
func valueJSON(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// FeeHeads is the ordered list of fee line items stored as JSONB.
type FeeHeads []FeeHead

func (h FeeHeads) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	return valueJSON([]FeeHead(h))
}

func (h *FeeHeads) Scan(src interface{}) error {
	return scanJSON(src, (*[]FeeHead)(h))
}

// Installments is a ledger's payment plan stored as JSONB.
type Installments []Installment

func (i Installments) Value() (driver.Value, error) {
	if i == nil {
		return "[]", nil
	}
	return valueJSON([]Installment(i))
}

func (i *Installments) Scan(src interface{}) error {
	return scanJSON(src, (*[]Installment)(i))
}

// Metadata is free-form audit context.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return valueJSON(map[string]interface{}(m))
}

func (m *Metadata) Scan(src interface{}) error {
	return scanJSON(src, (*map[string]interface{})(m))
}

// JSONDocument holds a before/after snapshot in an audit entry.
type JSONDocument json.RawMessage

func (d JSONDocument) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return string(d), nil
}

func (d *JSONDocument) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append((*d)[:0], v...)
	case string:
		*d = JSONDocument(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONDocument", src)
	}
	return nil
}

func (d JSONDocument) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *JSONDocument) UnmarshalJSON(b []byte) error {
	*d = append((*d)[:0], b...)
	return nil
}

// NewJSONDocument snapshots v. A nil v yields an empty document.
func NewJSONDocument(v interface{}) (JSONDocument, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONDocument(b), nil
}
