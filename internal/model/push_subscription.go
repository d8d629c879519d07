package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A subscriber receives alerts for the device IDs listed in its mappings.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Devices []*AlertDevice `gorm:"many2many:subscription_device_mapping;"`
}

// AlertDevice is a device a subscription can be attached to. Rows are created
// lazily as devices show up in the gateway's listing.
type AlertDevice struct {
	DeviceID  string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"not null"`
}
