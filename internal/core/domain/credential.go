package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/yndnr/pairmesh-go/pkg/token"
)

const (
	// CredentialField is the document field holding live credentials.
	CredentialField = "creds"

	// TombstonePrefix prefixes fields holding credentials retired by logout.
	TombstonePrefix = "deleted_creds_"

	// SessionIDPrefix is the prefix for credential session IDs.
	SessionIDPrefix = "pmss-"
)

// CredentialRecord is the durable authentication document of one identity.
//
// It is persisted as a flat JSON document. The live blob lives under the
// "creds" field; each logout renames it to a unique "deleted_creds_<ulid>"
// field so retired material stays auditable until an explicit purge.
type CredentialRecord struct {
	// Identity is the normalized tenant number, the record key.
	Identity string

	// SessionID is regenerated on every successful save.
	// Format: pmss-{ulid_lowercase}.
	SessionID string

	// Creds is the opaque serialized credential blob (empty once retired).
	Creds string

	// Active is true while Creds holds restorable credentials.
	Active bool

	// UpdatedAt is the time of the last save or deactivation.
	UpdatedAt time.Time

	// Tombstones maps tombstone field names to retired blobs.
	Tombstones map[string]string
}

// NewCredentialRecord creates an active record for identity holding creds.
func NewCredentialRecord(identity string, creds []byte) (*CredentialRecord, error) {
	r := &CredentialRecord{Identity: identity}
	if err := r.Refresh(creds); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh replaces the live credentials and issues a new session ID.
// Tombstone fields are left untouched.
func (r *CredentialRecord) Refresh(creds []byte) error {
	id, err := GenerateSessionID()
	if err != nil {
		return err
	}
	r.SessionID = id
	r.Creds = string(creds)
	r.Active = true
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Retire moves the live credentials into a fresh tombstone field and marks
// the record inactive. It returns the tombstone field name, or "" when there
// was no live blob to move.
func (r *CredentialRecord) Retire() (string, error) {
	r.Active = false
	r.UpdatedAt = time.Now().UTC()
	if r.Creds == "" {
		return "", nil
	}

	field, err := NewTombstoneField()
	if err != nil {
		return "", err
	}
	if r.Tombstones == nil {
		r.Tombstones = make(map[string]string)
	}
	r.Tombstones[field] = r.Creds
	r.Creds = ""
	return field, nil
}

// HasLiveCredentials reports whether the record can be restored.
func (r *CredentialRecord) HasLiveCredentials() bool {
	return r.Active && r.Creds != ""
}

// Clone returns a deep copy of the record.
func (r *CredentialRecord) Clone() *CredentialRecord {
	c := *r
	if r.Tombstones != nil {
		c.Tombstones = maps.Clone(r.Tombstones)
	}
	return &c
}

// MarshalJSON flattens tombstones into top-level fields.
func (r *CredentialRecord) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 5+len(r.Tombstones))
	doc["identity"] = r.Identity
	doc["session_id"] = r.SessionID
	doc["active"] = r.Active
	doc["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if r.Creds != "" {
		doc[CredentialField] = r.Creds
	}
	for field, blob := range r.Tombstones {
		doc[field] = blob
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reverses MarshalJSON. Unknown fields other than tombstones
// are ignored.
func (r *CredentialRecord) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*r = CredentialRecord{}
	for key, raw := range doc {
		var err error
		switch {
		case key == "identity":
			err = json.Unmarshal(raw, &r.Identity)
		case key == "session_id":
			err = json.Unmarshal(raw, &r.SessionID)
		case key == "active":
			err = json.Unmarshal(raw, &r.Active)
		case key == "updated_at":
			var ts string
			if err = json.Unmarshal(raw, &ts); err == nil {
				r.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts)
			}
		case key == CredentialField:
			err = json.Unmarshal(raw, &r.Creds)
		case strings.HasPrefix(key, TombstonePrefix):
			var blob string
			if err = json.Unmarshal(raw, &blob); err == nil {
				if r.Tombstones == nil {
					r.Tombstones = make(map[string]string)
				}
				r.Tombstones[key] = blob
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

// GenerateSessionID generates a new credential session ID using ULID.
func GenerateSessionID() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return SessionIDPrefix + id, nil
}

// NewTombstoneField returns a globally unique tombstone field name.
func NewTombstoneField() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return TombstonePrefix + id, nil
}

func newULID() (string, error) {
	id, err := token.New()
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return strings.ToLower(id), nil
}
