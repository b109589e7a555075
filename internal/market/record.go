package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a catalog entity mirrored from the upstream player collection.
// Besides the fields the service interprets, upstream payloads carry an open
// set of attributes that must survive a cache round-trip unmodified; those
// are kept verbatim in Attrs.
type Record struct {
	ID               string
	Name             string
	ExternalIdentity string
	Attrs            map[string]json.RawMessage
}

const (
	recordKeyID       = "id"
	recordKeyName     = "name"
	recordKeyIdentity = "externalIdentity"
)

// UnmarshalJSON extracts the interpreted fields and stashes everything else.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	*r = Record{}
	for key, val := range raw {
		switch key {
		case recordKeyID:
			if err := json.Unmarshal(val, &r.ID); err != nil {
				return fmt.Errorf("record id: %w", err)
			}
		case recordKeyName:
			if err := json.Unmarshal(val, &r.Name); err != nil {
				return fmt.Errorf("record name: %w", err)
			}
		case recordKeyIdentity:
			if err := json.Unmarshal(val, &r.ExternalIdentity); err != nil {
				return fmt.Errorf("record external identity: %w", err)
			}
		default:
			if r.Attrs == nil {
				r.Attrs = map[string]json.RawMessage{}
			}
			r.Attrs[key] = val
		}
	}
	return nil
}

// MarshalJSON re-merges the interpreted fields with the passthrough bag.
func (r Record) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(r.Attrs)+3)
	for key, val := range r.Attrs {
		merged[key] = val
	}
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, fmt.Errorf("marshal record id: %w", err)
	}
	merged[recordKeyID] = id
	name, err := json.Marshal(r.Name)
	if err != nil {
		return nil, fmt.Errorf("marshal record name: %w", err)
	}
	merged[recordKeyName] = name
	if r.ExternalIdentity != "" {
		identity, err := json.Marshal(r.ExternalIdentity)
		if err != nil {
			return nil, fmt.Errorf("marshal record identity: %w", err)
		}
		merged[recordKeyIdentity] = identity
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return out, nil
}

// NameEquals reports whether the record's name matches the given name under
// the case-insensitive lookup rule.
func (r Record) NameEquals(name string) bool {
	return r.Name != "" && strings.EqualFold(r.Name, name)
}
