package database

import (
	"time"

	"fleet-api/internal/models"

	"gorm.io/gorm"
)

// Device queries take the *gorm.DB handle explicitly so the same functions work
// on the global handle and inside the per-user transaction of the admission path.

// CreateDevice 创建设备
func CreateDevice(db *gorm.DB, device *models.Device) error {
	return db.Create(device).Error
}

// SaveDevice 保存设备
func SaveDevice(db *gorm.DB, device *models.Device) error {
	return db.Save(device).Error
}

// GetDeviceByID 通过ID获取设备
func GetDeviceByID(db *gorm.DB, id uint) (*models.Device, error) {
	var device models.Device
	err := db.First(&device, id).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// GetUserDevice gets a device scoped to its owner
func GetUserDevice(db *gorm.DB, userID, deviceID uint) (*models.Device, error) {
	var device models.Device
	err := db.Where("user_id = ? AND id = ?", userID, deviceID).First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// GetUserDevices 获取用户的所有设备
func GetUserDevices(db *gorm.DB, userID uint) ([]models.Device, error) {
	var devices []models.Device
	err := db.Where("user_id = ?", userID).Order("id ASC").Find(&devices).Error
	return devices, err
}

// GetUserDevicesByStatus gets a user's devices in one status
func GetUserDevicesByStatus(db *gorm.DB, userID uint, status models.DeviceStatus) ([]models.Device, error) {
	var devices []models.Device
	err := db.Where("user_id = ? AND status = ?", userID, status).Order("id ASC").Find(&devices).Error
	return devices, err
}

// CountUserDevicesByStatus counts a user's devices in one status
func CountUserDevicesByStatus(db *gorm.DB, userID uint, status models.DeviceStatus) (int64, error) {
	var count int64
	err := db.Model(&models.Device{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}

// TouchLastConnection refreshes the device's last connection timestamp
func TouchLastConnection(db *gorm.DB, device *models.Device, now time.Time) error {
	device.LastConnection = &now
	return db.Model(device).Update("last_connection", now).Error
}

// GetExpiredGraceDevices finds suspended devices whose grace period has passed
// and that have not been reported yet. Used by the grace period sweeper.
func GetExpiredGraceDevices(db *gorm.DB, now time.Time, limit int) ([]models.Device, error) {
	var devices []models.Device
	err := db.Where("status = ? AND grace_period_ends_at < ? AND grace_expired_notified_at IS NULL",
		models.DeviceSuspended, now).
		Order("grace_period_ends_at ASC").
		Limit(limit).
		Find(&devices).Error
	return devices, err
}
