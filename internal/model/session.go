package model

import (
	"github.com/roach88/tandem/internal/device"
	"github.com/roach88/tandem/internal/docstore"
)

// Session is one signed-in device for an account.
type Session struct {
	AccountID  string            `json:"accountId"`
	DeviceID   string            `json:"deviceId"`
	CreatedAt  int64             `json:"createdAt"`
	LastActive int64             `json:"lastActive"`
	Device     device.Descriptor `json:"device"`
}

// SessionID is the document id of the (account, device) session.
func SessionID(accountID, deviceID string) string {
	return accountID + "_" + deviceID
}

// SessionPath is the document path of the (account, device) session.
func SessionPath(accountID, deviceID string) string {
	return docstore.Join(Sessions, SessionID(accountID, deviceID))
}

// SessionFromDoc decodes a sessions/{id} document.
func SessionFromDoc(doc docstore.Document) Session {
	return Session{
		AccountID:  doc.Data.String("accountId"),
		DeviceID:   doc.Data.String("deviceId"),
		CreatedAt:  doc.Data.Int("createdAt"),
		LastActive: doc.Data.Int("lastActive"),
		Device: device.Descriptor{
			UserAgent: doc.Data.String("device.userAgent"),
			Platform:  doc.Data.String("device.platform"),
			Locale:    doc.Data.String("device.locale"),
			Hostname:  doc.Data.String("device.hostname"),
		},
	}
}

// DescriptorFields encodes a device descriptor for the session document.
func DescriptorFields(d device.Descriptor) map[string]any {
	return map[string]any{
		"userAgent": d.UserAgent,
		"platform":  d.Platform,
		"locale":    d.Locale,
		"hostname":  d.Hostname,
	}
}
