// Package domain defines the core data structures shared by the vault
// packages: credential records, field-level changes, rotation results and
// audit operations.
package domain

import (
	"time"
)

// Record is a named credential entry. Name is the storage key and the
// display name. EncryptedPassword is only meaningful together with the
// master passphrase that was current when it was written.
type Record struct {
	Name              string `json:"name"`
	URL               string `json:"url"`
	Login             string `json:"login"`
	EncryptedPassword []byte `json:"encrypted_password"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.EncryptedPassword = append([]byte(nil), r.EncryptedPassword...)
	return &c
}

// RecordChange describes a field-level modification of a record. Nil fields
// are left untouched. A non-nil Password is re-encrypted with the key passed
// alongside the change; a non-nil Name renames the record.
type RecordChange struct {
	Name     *string
	URL      *string
	Login    *string
	Password []byte
}

// IsEmpty reports whether the change modifies nothing.
func (c RecordChange) IsEmpty() bool {
	return c.Name == nil && c.URL == nil && c.Login == nil && c.Password == nil
}

// RotationResult summarises a completed master passphrase rotation.
type RotationResult struct {
	Rotated   []string      `json:"rotated"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Operation represents an audit log operation
type Operation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Record    string    `json:"record,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// Operation types recorded in the audit log.
const (
	OpInit          = "init"
	OpUnlock        = "unlock"
	OpCreate        = "create"
	OpView          = "view"
	OpUpdate        = "update"
	OpRename        = "rename"
	OpDelete        = "delete"
	OpRotateMaster  = "rotate_master"
	OpRecoverRotate = "recover_rotation"
)
