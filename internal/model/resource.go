package model

import "time"

// Resource is the metadata record of an uploaded object. The raw bytes live
// separately under PayloadKey so metadata and payload can be removed
// independently.
//
// Fields:
//
//	ID          – internal identifier, never shown in URLs.
//	Name        – sanitized, globally unique slug; the public identity.
//	ContentType – detected media type served back on fetch.
//	OwnerID     – account that uploaded it; empty for anonymous uploads.
//	Ephemeral   – when true ExpiresAt is set and an expiry index entry exists.
type Resource struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Ephemeral   bool              `json:"is_ephemeral"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	PayloadKey  string            `json:"payload_key"`
}

// ExpiredAt reports whether an ephemeral resource has passed its expiry.
func (r *Resource) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ExpiryEntry is one record of the secondary expiry index.
type ExpiryEntry struct {
	Key          string
	ExpiresAt    time.Time
	ResourceName string
	// Malformed is set when Key could not be decoded; such entries carry no
	// usable timestamp or name.
	Malformed bool
}
