package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// CheckRequest is one URL submitted by a client. StatusCode and ContentLength
// are only meaningful once Status is success; on the wire they are null
// otherwise.
type CheckRequest struct {
	ID            string    `json:"id"`
	RequestURL    string    `json:"request_url"`
	RequestClient string    `json:"request_client"`
	Status        Status    `json:"status"`
	IP            string    `json:"ip,omitempty"`
	StatusCode    int       `json:"status_code"`
	ContentLength int64     `json:"content_length"`
	CreatedAt     time.Time `json:"created_at"`
}

// Clone returns a copy safe to hand to another goroutine.
func (c *CheckRequest) Clone() *CheckRequest {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (c CheckRequest) MarshalJSON() ([]byte, error) {
	type plain CheckRequest
	out := struct {
		plain
		StatusCode    *int   `json:"status_code"`
		ContentLength *int64 `json:"content_length"`
	}{plain: plain(c)}
	if c.Status == StatusSuccess {
		out.StatusCode = &c.StatusCode
		out.ContentLength = &c.ContentLength
	}
	return json.Marshal(out)
}
