package model

import (
	"sort"

	"github.com/roach88/tandem/internal/docstore"
)

// Reminder is a scheduled notification for an account group. Reminders
// are created by an external scheduler; clients only acknowledge them
// (sent false -> true).
type Reminder struct {
	ID             string `json:"id"`
	AccountGroupID string `json:"accountGroupId"`
	Type           string `json:"type"`
	Sent           bool   `json:"sent"`
	Shown          bool   `json:"shown"`
	ScheduledAt    int64  `json:"scheduledAt,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	SubjectID      string `json:"subjectId,omitempty"`
	Note           string `json:"note,omitempty"`
}

// ReminderPath is the document path of a reminder.
func ReminderPath(id string) string {
	return docstore.Join(Reminders, id)
}

// ReminderFromDoc decodes a reminders/{id} document.
func ReminderFromDoc(doc docstore.Document) Reminder {
	return Reminder{
		ID:             doc.ID,
		AccountGroupID: doc.Data.String("accountGroupId"),
		Type:           doc.Data.String("type"),
		Sent:           doc.Data.Bool("sent"),
		Shown:          doc.Data.Bool("shown"),
		ScheduledAt:    doc.Data.Int("scheduledAt"),
		CreatedAt:      doc.Data.Int("createdAt"),
		SubjectID:      doc.Data.String("subjectId"),
		Note:           doc.Data.String("note"),
	}
}

// EffectiveTime is the reminder time when set, else the creation time.
func (r Reminder) EffectiveTime() int64 {
	if r.ScheduledAt > 0 {
		return r.ScheduledAt
	}
	return r.CreatedAt
}

// SortByEffectiveTime orders reminders newest first; ties by id.
func SortByEffectiveTime(rs []Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		ti, tj := rs[i].EffectiveTime(), rs[j].EffectiveTime()
		if ti != tj {
			return ti > tj
		}
		return rs[i].ID < rs[j].ID
	})
}
