// Package models defines client-side data models used by the GophVault CLI.
package models

import (
	"encoding/json"
	"errors"
)

// EntryType classifies the payload carried by a vault record.
type EntryType string

const (
	EntryTypeLogin EntryType = "login"
	EntryTypeNote  EntryType = "note"
	EntryTypeCard  EntryType = "card"
)

var ErrUnknownEntryType = errors.New("unknown entry type")

// Envelope is the plaintext body of a vault record: the type tag, the
// display name and the type-specific details.
type Envelope struct {
	Type    EntryType       `json:"type"`
	Name    string          `json:"name"`
	Details json.RawMessage `json:"details"`
}

// TypedEntry is implemented by every payload kind.
type TypedEntry interface {
	GetType() EntryType
}

// Wrap serializes v into an Envelope of its own type.
func Wrap[T TypedEntry](name string, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: v.GetType(), Name: name, Details: b}, nil
}

// Unwrap decodes Details into the concrete payload for Type.
func (e Envelope) Unwrap() (TypedEntry, error) {
	switch e.Type {
	case EntryTypeLogin:
		var v Login
		if err := json.Unmarshal(e.Details, &v); err != nil {
			return nil, err
		}
		return v, nil
	case EntryTypeNote:
		var v Note
		if err := json.Unmarshal(e.Details, &v); err != nil {
			return nil, err
		}
		return v, nil
	case EntryTypeCard:
		var v Card
		if err := json.Unmarshal(e.Details, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, ErrUnknownEntryType
	}
}

// Login stores website credentials.
type Login struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	URIs     []string `json:"uris,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

func (x Login) GetType() EntryType { return EntryTypeLogin }

// Note stores free-form text.
type Note struct {
	Text string `json:"text"`
}

func (x Note) GetType() EntryType { return EntryTypeNote }

// Card stores payment card details.
type Card struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
}

func (x Card) GetType() EntryType { return EntryTypeCard }
