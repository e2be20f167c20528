package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScreenService handles screen and history database operations.
type ScreenService struct {
	db *gorm.DB
}

// NewScreenService creates a new screen service.
func NewScreenService(db *gorm.DB) *ScreenService {
	return &ScreenService{db: db}
}

// SaveScreen stores a screen, compressing the plane bytes into the
// payload column. The caller fills the geometry fields; planes is the
// concatenated plane data.
func (ss *ScreenService) SaveScreen(screen *Screen, planes []byte) error {
	screen.Payload = compressBlob(planes)
	screen.RawSize = len(planes)
	return ss.db.Create(screen).Error
}

// GetScreen returns a screen by ID, payload included.
func (ss *ScreenService) GetScreen(screenID uuid.UUID) (*Screen, error) {
	var screen Screen
	if err := ss.db.First(&screen, "id = ?", screenID).Error; err != nil {
		return nil, err
	}
	return &screen, nil
}

// ListScreens returns recent screens without their payloads.
func (ss *ScreenService) ListScreens(limit int) ([]Screen, error) {
	if limit <= 0 {
		limit = 50
	}
	var screens []Screen
	err := ss.db.Omit("payload").Order("created_at DESC").Limit(limit).Find(&screens).Error
	return screens, err
}

// DeleteScreen removes a screen and detaches it from any device
// pointing at it.
func (ss *ScreenService) DeleteScreen(screenID uuid.UUID) error {
	return ss.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Device{}).Where("screen_id = ?", screenID).
			Update("screen_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&Screen{}, "id = ?", screenID).Error
	})
}

// Data returns the decompressed plane bytes of a loaded screen.
func (s *Screen) Data() ([]byte, error) {
	return decompressBlob(s.Payload)
}

// RecordConversion appends one line of processing history.
func (ss *ScreenService) RecordConversion(c *Conversion) error {
	return ss.db.Create(c).Error
}

// ListConversions returns recent history, newest first.
func (ss *ScreenService) ListConversions(limit int) ([]Conversion, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var convs []Conversion
	err := ss.db.Order("created_at DESC").Limit(limit).Find(&convs).Error
	return convs, err
}

// Stats summarizes the retained conversion history.
type Stats struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ConversionStats aggregates the conversion history table.
func (ss *ScreenService) ConversionStats() (*Stats, error) {
	var stats Stats
	if err := ss.db.Model(&Conversion{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := ss.db.Model(&Conversion{}).Where("success = ?", true).
		Count(&stats.Succeeded).Error; err != nil {
		return nil, err
	}
	stats.Failed = stats.Total - stats.Succeeded
	if stats.Total > 0 {
		if err := ss.db.Model(&Conversion{}).
			Select("AVG(duration_ms)").Scan(&stats.AvgDurationMs).Error; err != nil {
			return nil, err
		}
	}
	return &stats, nil
}

// SweepHistory deletes conversion records older than the retention
// window and returns how many went away.
func (ss *ScreenService) SweepHistory(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := ss.db.Delete(&Conversion{}, "created_at < ?", cutoff)
	return res.RowsAffected, res.Error
}
