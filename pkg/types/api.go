package types

// StatusResponse is returned by GET /api/server/status.
type StatusResponse struct {
	// Current lifecycle status of the supervised service.
	// example: running
	Status string `json:"status" example:"running"`
	// Failure detail retained while the status is "error".
	Error string `json:"error,omitempty"`
	// Model the service was started with.
	// example: llama-3.1-8b-q4_k_m.gguf
	Model string `json:"model,omitempty" example:"llama-3.1-8b-q4_k_m.gguf"`
	// Process ID of the engine (when running out of process).
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Resident set size of the engine process in MB.
	// example: 4200
	RSSMB int `json:"rss_mb,omitempty" example:"4200"`
	// Open file descriptors of the engine process.
	// example: 48
	OpenFDs int `json:"open_fds,omitempty" example:"48"`
	// Seconds since the service reached running.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds,omitempty" example:"3600"`
}

// ControlResponse is returned by the start/stop and config mutation endpoints.
type ControlResponse struct {
	Success bool `json:"success"`
	// example: Server starting...
	Message string `json:"message" example:"Server starting..."`
}

// ManageModelsResponse echoes the updated model list after a manage operation.
type ManageModelsResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Models  []ModelEntry `json:"models"`
}

// ManageModelsRequest is the body of POST /api/models/manage.
type ManageModelsRequest struct {
	// "add" or "remove".
	// example: add
	Action string `json:"action" example:"add"`
	// "language" or "voice".
	// example: language
	Type string `json:"type" example:"language"`
	// Model the action applies to; remove matches on file_name only.
	Data ModelEntry `json:"data"`
}

// ModelSummary is the projection of a language model returned by GET /api/models.
type ModelSummary struct {
	FileName string `json:"file_name"`
	// Falls back to the file name when no nickname is set.
	Nickname           string  `json:"nickname"`
	ParametersBillions float64 `json:"parameters_billions"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: server is already running
	Error string `json:"error" example:"server is already running"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
