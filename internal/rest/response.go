package rest

// ErrorResponse is the JSON body returned by handlers for any non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
