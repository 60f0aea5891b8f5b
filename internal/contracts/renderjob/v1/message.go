// Package v1 is the queue contract between the API and render workers.
package v1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const Version = "renderjob/v1"

// Message asks a worker to run one batch job. The API has already resolved
// entity ids and names, so the worker never re-plans.
type Message struct {
	Version    string    `json:"version"`
	JobID      string    `json:"job_id"`
	EntityIDs  []string  `json:"entity_ids"`
	Mode       string    `json:"mode"`
	Items      []Item    `json:"items"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func Encode(m Message) ([]byte, error) {
	if m.Version == "" {
		m.Version = Version
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode render job: %w", err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) validate() error {
	if m.Version != Version {
		return fmt.Errorf("unsupported render job version %q", m.Version)
	}
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("render job without job_id")
	}
	if len(m.EntityIDs) == 0 {
		return fmt.Errorf("render job %s has no entities", m.JobID)
	}
	return nil
}
