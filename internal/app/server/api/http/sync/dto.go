package sync

import (
	"paysync/internal/domain/batch"
	"paysync/internal/domain/sync"
)

// push
type pushInput struct {
	Body PushRequest `required:"false"`
}

type PushRequest struct {
	Since int64 `json:"since,omitempty" minimum:"0" doc:"Unix millis of the previous push, 0 sends every unsynced row"`
}

type pushOutput struct {
	Body sync.PushResult
}

// pull
type pullInput struct{}

type pullOutput struct {
	Body sync.ApplyResult
}

// status
type statusInput struct{}

type statusOutput struct {
	Body sync.StatusResult
}

// reset
type resetInput struct{}

type resetOutput struct {
	Body sync.ResetResult
}

// trail
type trailInput struct {
	ID string `path:"id" doc:"Batch id"`
}

type trailOutput struct {
	Body TrailResponse
}

type TrailResponse struct {
	BatchID string             `json:"batchId"`
	Entries []batch.TrailEntry `json:"entries"`
}

// ingest
type ingestInput struct {
	Body sync.Bundle
}

type ingestOutput struct {
	Body sync.ApplyResult
}

// export
type exportInput struct {
	Since  int64  `query:"since" minimum:"0" doc:"Return rows with updated_at greater than this unix millis value"`
	Device string `query:"device" doc:"Requesting device, its own rows are left out"`
}

type exportOutput struct {
	Body sync.Bundle
}
