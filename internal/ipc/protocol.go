package ipc

// Request is one CLI command sent to the running controller.
type Request struct {
	Command  string `json:"command"`
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Response is the controller's reply to one Request.
type Response struct {
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Owner      string `json:"owner,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}
