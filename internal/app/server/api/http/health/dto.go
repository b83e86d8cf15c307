package health

// Input represents the input for health check endpoint
type Input struct{}

// Output represents the output for health check endpoint
type Output struct {
	Body Response
}

// Response represents the health check response
type Response struct {
	Status  string `json:"status" example:"OK" doc:"Health status of the service"`
	Mode    string `json:"mode,omitempty" example:"ONLINE" doc:"Current operating mode"`
	Backend string `json:"backend,omitempty" example:"postgres" doc:"Backend serving ordinary requests"`
}
