package audit

import "errors"

var (
	ErrTenantRequired = errors.New("audit entry requires tenant id")
	ErrActionRequired = errors.New("audit entry requires action type")
)
