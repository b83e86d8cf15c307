package audit

import "paysync/internal/domain/audit"

type verifyInput struct {
	All bool `query:"all" doc:"Verify every tenant chain instead of the caller's"`
}

type verifyOutput struct {
	Body audit.Report
}

type entriesInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"100"`
}

type entriesOutput struct {
	Body EntriesResponse
}

type EntriesResponse struct {
	TenantID string        `json:"tenantId"`
	Entries  []audit.Entry `json:"entries"`
}
