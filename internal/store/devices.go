package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceService handles device-related database operations.
type DeviceService struct {
	db *gorm.DB
}

// NewDeviceService creates a new device service.
func NewDeviceService(db *gorm.DB) *DeviceService {
	return &DeviceService{db: db}
}

// generateToken returns a random hex token for device polling auth.
func generateToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// CreateDevice registers a device against a panel profile name.
func (ds *DeviceService) CreateDevice(name, profileName, description string) (*Device, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	device := &Device{
		Name:        name,
		Profile:     profileName,
		Description: description,
		Token:       token,
	}
	if err := ds.db.Create(device).Error; err != nil {
		return nil, err
	}
	return device, nil
}

// GetDeviceByID returns a device by its ID.
func (ds *DeviceService) GetDeviceByID(deviceID uuid.UUID) (*Device, error) {
	var device Device
	if err := ds.db.First(&device, "id = ?", deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// GetDeviceByName returns a device by its unique name.
func (ds *DeviceService) GetDeviceByName(name string) (*Device, error) {
	var device Device
	if err := ds.db.First(&device, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// GetDeviceByToken returns the device owning a polling token.
func (ds *DeviceService) GetDeviceByToken(token string) (*Device, error) {
	var device Device
	if err := ds.db.First(&device, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// ListDevices returns all devices, newest first.
func (ds *DeviceService) ListDevices() ([]Device, error) {
	var devices []Device
	err := ds.db.Order("created_at DESC").Find(&devices).Error
	return devices, err
}

// AssignScreen points a device at the screen it should display next.
func (ds *DeviceService) AssignScreen(deviceID, screenID uuid.UUID) error {
	var screen Screen
	if err := ds.db.First(&screen, "id = ?", screenID).Error; err != nil {
		return fmt.Errorf("screen %s: %w", screenID, err)
	}
	return ds.db.Model(&Device{}).Where("id = ?", deviceID).
		Update("screen_id", screenID).Error
}

// TouchDevice records that a device polled just now.
func (ds *DeviceService) TouchDevice(deviceID uuid.UUID) error {
	now := time.Now().UTC()
	return ds.db.Model(&Device{}).Where("id = ?", deviceID).
		Update("last_seen_at", now).Error
}

// DeleteDevice removes a device. Its screens stay available to others.
func (ds *DeviceService) DeleteDevice(deviceID uuid.UUID) error {
	return ds.db.Delete(&Device{}, "id = ?", deviceID).Error
}
