package amqp

import (
	"encoding/json"
	"time"

	"kakebo/internal/core"
)

// SyncRequiredMessage tells offline agents that server data changed and a
// pull is worthwhile. It carries only the entity and id; agents fetch
// full state over the API.
type SyncRequiredMessage struct {
	Entity    string    `json:"entity"`
	ID        core.ID   `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncRequiredMessage(entity string, id core.ID) *SyncRequiredMessage {
	return &SyncRequiredMessage{
		Entity:    entity,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *SyncRequiredMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequiredMessageFromJSON(data []byte) (*SyncRequiredMessage, error) {
	var msg SyncRequiredMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
