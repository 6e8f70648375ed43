package storage

import (
	"encoding/json"
	"time"

	"taskflow/domain"
)

const edmDateTime = "Edm.DateTime"

type taskEntity struct {
	PartitionKey  string     `json:"PartitionKey"`
	RowKey        string     `json:"RowKey"`
	Title         string     `json:"Title"`
	Description   *string    `json:"Description,omitempty"`
	Status        string     `json:"Status"`
	Priority      string     `json:"Priority"`
	DueDate       *time.Time `json:"DueDate,omitempty"`
	DueDateType   string     `json:"DueDate@odata.type,omitempty"`
	CreatedAt     time.Time  `json:"CreatedAt"`
	CreatedAtType string     `json:"CreatedAt@odata.type,omitempty"`
	UpdatedAt     time.Time  `json:"UpdatedAt"`
	UpdatedAtType string     `json:"UpdatedAt@odata.type,omitempty"`
}

// tableTime keeps at most microsecond precision; Edm.DateTime stores seven
// fractional digits.
func tableTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func encodeTask(userID string, t domain.Task) ([]byte, error) {
	ent := taskEntity{
		PartitionKey:  userID,
		RowKey:        t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		CreatedAt:     tableTime(t.CreatedAt),
		CreatedAtType: edmDateTime,
		UpdatedAt:     tableTime(t.UpdatedAt),
		UpdatedAtType: edmDateTime,
	}
	if t.DueDate != nil {
		d := tableTime(*t.DueDate)
		ent.DueDate = &d
		ent.DueDateType = edmDateTime
	}
	return json.Marshal(ent)
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		DueDate:     ent.DueDate,
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
	}, nil
}
