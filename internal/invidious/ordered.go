// SPDX-License-Identifier: MIT

package invidious

import (
	"bytes"
	"encoding/json"
)

// OrderedFields is a JSON object that remembers insertion order (or an
// explicitly assigned emission order) for its keys, so C6 can honour
// settings.SortToInvSchema by re-emitting keys in mask order while still
// supporting set/has/delete like an ordinary map.
type OrderedFields struct {
	order  []string
	values map[string]json.RawMessage
}

// NewOrderedFields creates an empty OrderedFields.
func NewOrderedFields() *OrderedFields {
	return &OrderedFields{values: map[string]json.RawMessage{}}
}

// Set assigns key to the JSON encoding of value, appending key to the
// emission order if it is new.
func (o *OrderedFields) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return o.SetRaw(key, raw)
}

// SetRaw assigns key to an already-encoded JSON value.
func (o *OrderedFields) SetRaw(key string, raw json.RawMessage) error {
	if _, ok := o.values[key]; !ok {
		o.order = append(o.order, key)
	}
	o.values[key] = raw
	return nil
}

// SetNull assigns the JSON literal null to key.
func (o *OrderedFields) SetNull(key string) {
	_ = o.SetRaw(key, json.RawMessage("null"))
}

// Has reports whether key has been set.
func (o *OrderedFields) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Get returns the raw JSON for key, if set.
func (o *OrderedFields) Get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Delete removes key from both the value map and the emission order.
func (o *OrderedFields) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Keys returns the fields in current emission order.
func (o *OrderedFields) Keys() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Reorder replaces the emission order with mask, keeping only keys
// present in both mask and the current value set, followed by any
// remaining keys (e.g. comments, innertube) not named in mask, in their
// prior order.
func (o *OrderedFields) Reorder(mask []string) {
	seen := map[string]bool{}
	next := make([]string, 0, len(o.order))
	for _, k := range mask {
		if _, ok := o.values[k]; ok && !seen[k] {
			next = append(next, k)
			seen[k] = true
		}
	}
	for _, k := range o.order {
		if !seen[k] {
			next = append(next, k)
			seen[k] = true
		}
	}
	o.order = next
}

// MarshalJSON emits the object in current field order.
func (o *OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(o.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
