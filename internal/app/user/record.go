/*
Package user holds the per-user record model and the UserStore operations over it.

A UserRecord is an open JSON document. The fields the service gives meaning to are
typed; any other top-level key is carried verbatim in Extra and merged shallowly.
*/
package user

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// TimestampFormat is ISO-8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Top-level keys with typed fields.
const (
	FieldID        = "id"
	FieldUsername  = "username"
	FieldCoins     = "coins"
	FieldLevel     = "level"
	FieldMessages  = "messages"
	FieldCreatedAt = "createdAt"
)

// Message keys with typed fields.
const (
	FieldFrom = "from"
	FieldText = "text"
	FieldDate = "date"
)

// fieldOrder is the key order used when encoding a record.
var fieldOrder = []string{FieldID, FieldUsername, FieldCoins, FieldLevel, FieldMessages, FieldCreatedAt}

var messageFieldOrder = []string{FieldFrom, FieldText, FieldDate}

// Timestamp is a point in time together with the text it was read from.
// A decoded Timestamp encodes back to exactly that text.
type Timestamp struct {
	time.Time
	text string
}

// NewTimestamp truncates t to milliseconds in UTC and renders it with TimestampFormat.
func NewTimestamp(t time.Time) Timestamp {
	t = t.UTC().Truncate(time.Millisecond)
	return Timestamp{Time: t, text: t.Format(TimestampFormat)}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.text != "" {
		return json.Marshal(ts.text)
	}
	return json.Marshal(ts.UTC().Format(TimestampFormat))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	ts.Time, ts.text = t, s
	return nil
}

// Message is one entry of a user's message log.
//
// Like UserRecord it is an open object: keys other than from, text and date, and typed
// keys whose stored value does not fit, are kept in Extra. A typed key missing from a
// stored message stays missing when the message is encoded again.
type Message struct {
	From string
	Text string
	Date Timestamp

	Extra map[string]json.RawMessage

	// missing has bit i set when messageFieldOrder[i] was absent from the decoded object.
	missing uint8
}

func (m Message) encodeField(key string) (json.RawMessage, error) {
	if raw, ok := m.Extra[key]; ok {
		return raw, nil
	}
	i := slices.Index(messageFieldOrder, key)
	if i < 0 || m.missing&(1<<i) != 0 {
		return nil, nil
	}

	switch key {
	case FieldFrom:
		return json.Marshal(m.From)
	case FieldText:
		return json.Marshal(m.Text)
	default:
		return json.Marshal(m.Date)
	}
}

// setField decodes a typed message key. It reports false when raw belongs in Extra.
func (m *Message) setField(key string, raw json.RawMessage) (bool, error) {
	if isNull(raw) {
		return false, nil
	}

	switch key {
	case FieldFrom:
		return json.Unmarshal(raw, &m.From) == nil, nil
	case FieldText:
		return json.Unmarshal(raw, &m.Text) == nil, nil
	case FieldDate:
		if err := json.Unmarshal(raw, &m.Date); err != nil {
			return false, fmt.Errorf("field %q: %w", key, err)
		}
	}
	return true, nil
}

// MarshalJSON writes from, text and date followed by Extra keys sorted by name.
func (m Message) MarshalJSON() ([]byte, error) {
	return encodeObject(messageFieldOrder, m.Extra, m.encodeField)
}

// UnmarshalJSON decodes a stored message. A date that is not a timestamp is an error.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("message must be a JSON object")
	}

	*m = Message{}
	for i, key := range messageFieldOrder {
		raw, ok := fields[key]
		if !ok {
			m.missing |= 1 << i
			continue
		}
		fits, err := m.setField(key, raw)
		if err != nil {
			return err
		}
		if fits {
			delete(fields, key)
		}
	}
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// encodeObject writes the keys of order, then the remaining keys of extra sorted by
// name. Keys for which field returns nil are left out.
func encodeObject(order []string, extra map[string]json.RawMessage, field func(string) (json.RawMessage, error)) ([]byte, error) {
	keys := slices.Clone(order)
	rest := make([]string, 0, len(extra))
	for k := range extra {
		if !slices.Contains(order, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, k := range keys {
		raw, err := field(k)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		if raw == nil {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		name, _ := json.Marshal(k)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UserRecord is the persisted per-user document.
//
// A nil typed field means the key is absent from the document, and an empty ID means
// the document has no usable id. Messages distinguishes absent (nil) from empty.
// ID, CreatedAt and Messages are enforced: a stored document where they have the wrong
// type does not decode, while an explicit null is kept in Extra. The other typed fields
// are lenient: a value of another JSON type, or null, is kept in Extra under the same key.
type UserRecord struct {
	ID        string
	Username  *string
	Coins     *int64
	Level     *int64
	Messages  []Message
	CreatedAt *Timestamp

	Extra map[string]json.RawMessage
}

// Protected reports whether key is owned by the store and ignored in merge payloads.
func Protected(key string) bool {
	switch key {
	case FieldID, FieldCreatedAt, FieldMessages:
		return true
	}
	return false
}

// Merge applies a shallow merge: each key of partial replaces the record's value for
// that key wholesale. Protected keys are skipped.
func (u *UserRecord) Merge(partial map[string]json.RawMessage) {
	for key, raw := range partial {
		if Protected(key) {
			continue
		}
		u.setLenient(key, raw)
	}
}

// SetID makes id the record's id.
func (u *UserRecord) SetID(id string) {
	u.ID = id
	delete(u.Extra, FieldID)
}

// AppendMessage adds m as the last message, defaulting an absent or null log to empty.
func (u *UserRecord) AppendMessage(m Message) {
	if u.Messages == nil {
		u.Messages = []Message{}
		delete(u.Extra, FieldMessages)
	}
	u.Messages = append(u.Messages, m)
}

// Get returns the encoded value stored under key, if present.
func (u *UserRecord) Get(key string) (json.RawMessage, bool) {
	raw, err := u.encodeField(key)
	if err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}

func (u *UserRecord) setExtra(key string, raw json.RawMessage) {
	if u.Extra == nil {
		u.Extra = make(map[string]json.RawMessage)
	}
	u.Extra[key] = slices.Clone(raw)
}

// setLenient stores raw under key, falling back to Extra when it does not fit the typed field.
func (u *UserRecord) setLenient(key string, raw json.RawMessage) {
	null := isNull(raw)

	switch key {
	case FieldUsername:
		u.Username = nil
		var v string
		if !null && json.Unmarshal(raw, &v) == nil {
			u.Username = &v
			delete(u.Extra, key)
			return
		}
	case FieldCoins, FieldLevel:
		target := &u.Coins
		if key == FieldLevel {
			target = &u.Level
		}
		*target = nil
		var v int64
		if !null && json.Unmarshal(raw, &v) == nil {
			*target = &v
			delete(u.Extra, key)
			return
		}
	}

	u.setExtra(key, raw)
}

// setStrict decodes an enforced field from a stored document.
func (u *UserRecord) setStrict(key string, raw json.RawMessage) error {
	null := isNull(raw)

	switch key {
	case FieldID:
		if err := json.Unmarshal(raw, &u.ID); err != nil || null {
			return fmt.Errorf("field %q must be a string", key)
		}
		if u.ID == "" {
			u.setExtra(key, raw)
		}
	case FieldCreatedAt:
		if null {
			u.setExtra(key, raw)
			return nil
		}
		var ts Timestamp
		if err := json.Unmarshal(raw, &ts); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		u.CreatedAt = &ts
	case FieldMessages:
		if null {
			u.setExtra(key, raw)
			return nil
		}
		var msgs []Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if msgs == nil {
			msgs = []Message{}
		}
		u.Messages = msgs
	default:
		u.setLenient(key, raw)
	}
	return nil
}

func (u *UserRecord) encodeField(key string) (json.RawMessage, error) {
	switch key {
	case FieldID:
		if u.ID != "" {
			return json.Marshal(u.ID)
		}
	case FieldUsername:
		if u.Username != nil {
			return json.Marshal(*u.Username)
		}
	case FieldCoins:
		if u.Coins != nil {
			return json.Marshal(*u.Coins)
		}
	case FieldLevel:
		if u.Level != nil {
			return json.Marshal(*u.Level)
		}
	case FieldMessages:
		if u.Messages != nil {
			return json.Marshal(u.Messages)
		}
	case FieldCreatedAt:
		if u.CreatedAt != nil {
			return json.Marshal(u.CreatedAt)
		}
	}

	if raw, ok := u.Extra[key]; ok {
		return raw, nil
	}
	return nil, nil
}

// MarshalJSON writes the typed fields in a fixed order followed by Extra keys sorted by name.
func (u UserRecord) MarshalJSON() ([]byte, error) {
	return encodeObject(fieldOrder, u.Extra, u.encodeField)
}

// UnmarshalJSON decodes a stored document. Enforced fields with the wrong type are an error.
func (u *UserRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	*u = UserRecord{}
	for key, raw := range fields {
		if err := u.setStrict(key, raw); err != nil {
			return err
		}
	}
	return nil
}
