package models

import (
	"time"

	"github.com/google/uuid"
)

// System groups the checklists of one accredited information system
type System struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description,omitempty" db:"description"`
	ChecklistCount int       `json:"checklist_count" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ChecklistRecord is a stored checklist document plus the metadata derived
// from it
type ChecklistRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SystemID  uuid.UUID `json:"system_id" db:"system_id"`
	Title     string    `json:"title" db:"title"`
	StigID    string    `json:"stig_id,omitempty" db:"stig_id"`
	HostName  string    `json:"host_name" db:"host_name"`
	RawXML    string    `json:"-" db:"raw_xml"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Checklist is the parsed form of RawXML. Not persisted.
	Checklist *Checklist `json:"checklist,omitempty" db:"-"`
}

// Template is a blank checklist for one benchmark
type Template struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	StigID    string    `json:"stig_id,omitempty" db:"stig_id"`
	RawXML    string    `json:"-" db:"raw_xml"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
