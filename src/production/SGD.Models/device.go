package sgdmodels

import "time"

// Device is a registered garden controller
type Device struct {
	ID        int64      `json:"id" db:"id"`
	DeviceUID string     `json:"device_uid" db:"device_uid"`
	Name      string     `json:"name" db:"name"`
	AutoMode  bool       `json:"auto_mode" db:"auto_mode"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the device is soft deleted
func (d *Device) IsDeleted() bool {
	return d.DeletedAt != nil
}

// DeviceRequest is the body of create and update calls
type DeviceRequest struct {
	DeviceUID string `json:"device_uid" binding:"required,device_uid"`
	Name      string `json:"name" binding:"required,max=255"`
}

// DeviceUpdateRequest only carries the mutable fields
type DeviceUpdateRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}
