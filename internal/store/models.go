package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Device is a registered e-paper client that polls for screens.
type Device struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Profile     string    `gorm:"size:64;not null" json:"profile"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Token       string    `gorm:"size:64;uniqueIndex;not null" json:"-"`

	// ScreenID points at the screen the device should display next.
	ScreenID *uuid.UUID `gorm:"type:uuid" json:"screen_id,omitempty"`
	Screen   *Screen    `gorm:"foreignKey:ScreenID" json:"-"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// BeforeCreate sets UUID if not already set
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Screen is one converted image: packed plane bytes plus the geometry
// a client needs to push them to a panel. Payload holds the planes
// concatenated and zstd-compressed; RawSize is the size before
// compression.
type Screen struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:255;not null;index" json:"name"`
	Class   string    `gorm:"size:16;not null" json:"class"`
	Width   int       `gorm:"not null" json:"width"`
	Height  int       `gorm:"not null" json:"height"`
	Pitch   int       `gorm:"not null" json:"pitch"`
	Planes  int       `gorm:"not null" json:"planes"`
	Payload []byte    `gorm:"type:blob;not null" json:"-"`
	RawSize int       `gorm:"not null" json:"raw_size"`

	// Options records the conversion settings as submitted.
	Options datatypes.JSON `json:"options,omitempty"`

	SourceFormat string    `gorm:"size:16" json:"source_format,omitempty"`
	SourceSHA256 string    `gorm:"size:64;index" json:"source_sha256,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Screen) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Conversion is one line of processing history, kept for the history
// and stats endpoints and pruned by the retention sweep.
type Conversion struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ScreenID     *uuid.UUID `gorm:"type:uuid;index" json:"screen_id,omitempty"`
	Source       string     `gorm:"size:255" json:"source"`
	SourceSize   int        `json:"source_size"`
	SourceSHA256 string     `gorm:"size:64;index" json:"source_sha256,omitempty"`
	DurationMs   int        `json:"duration_ms"`
	Success      bool       `gorm:"default:false" json:"success"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (c *Conversion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// GetAllModels returns every model for auto-migration.
func GetAllModels() []interface{} {
	return []interface{}{
		&Device{},
		&Screen{},
		&Conversion{},
	}
}
