package settings

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Document is the persisted form of the store: one encoded record per scope.
// Backends read and write it as a whole.
type Document map[ScopeKey]json.RawMessage

// recordWire is the decoding shape. Pointer fields tell a missing key apart
// from a zero value so older documents pick up defaults.
type recordWire struct {
	Enabled       *bool         `json:"enabled"`
	DelaySeconds  *float64      `json:"delay_seconds"`
	AutoReplies   *[]string     `json:"auto_replies"`
	PrivilegedIDs []Identity    `json:"privileged_ids"`
	Flags         map[Flag]bool `json:"flags"`
}

type recordOut struct {
	Enabled       bool          `json:"enabled"`
	DelaySeconds  float64       `json:"delay_seconds"`
	AutoReplies   []string      `json:"auto_replies"`
	PrivilegedIDs []Identity    `json:"privileged_ids"`
	Flags         map[Flag]bool `json:"flags,omitempty"`
}

// EncodeRecord returns the JSON form of r.
func EncodeRecord(r Record) (json.RawMessage, error) {
	out := recordOut{
		Enabled:       r.Enabled,
		DelaySeconds:  r.DelaySeconds,
		AutoReplies:   r.AutoReplies,
		PrivilegedIDs: r.PrivilegedIDs,
		Flags:         r.Flags,
	}
	if out.AutoReplies == nil {
		out.AutoReplies = []string{}
	}
	if out.PrivilegedIDs == nil {
		out.PrivilegedIDs = []Identity{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("settings: encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses raw, filling missing or invalid fields from d and
// re-establishing the record invariants.
func DecodeRecord(raw json.RawMessage, d Defaults) (Record, error) {
	var w recordWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	rec := d.NewRecord()
	if w.Enabled != nil {
		rec.Enabled = *w.Enabled
	}
	if w.DelaySeconds != nil && ValidDelay(*w.DelaySeconds) {
		rec.DelaySeconds = *w.DelaySeconds
	}
	if w.AutoReplies != nil {
		rec.AutoReplies = *w.AutoReplies
	}
	rec.PrivilegedIDs = append(rec.PrivilegedIDs, w.PrivilegedIDs...)
	rec.Flags = w.Flags
	normalize(&rec, d.Owner)
	return rec, nil
}

// EncodeDocument renders records as one indented JSON object keyed by scope,
// the layout of the JSON file backend.
func EncodeDocument(records map[ScopeKey]Record) ([]byte, error) {
	doc, err := encodeAll(records)
	if err != nil {
		return nil, err
	}
	return marshalDocument(doc)
}

func encodeAll(records map[ScopeKey]Record) (Document, error) {
	doc := make(Document, len(records))
	for key, rec := range records {
		raw, err := EncodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("settings: scope %s: %w", key, err)
		}
		doc[key] = raw
	}
	return doc, nil
}

func marshalDocument(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("settings: encode document: %w", err)
	}
	return append(data, '\n'), nil
}

// sortedKeys returns the document keys in lexical order.
func (doc Document) sortedKeys() []ScopeKey {
	keys := make([]ScopeKey, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
