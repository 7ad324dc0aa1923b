package receiver

// ForwardResult reports the outcome of one forwarding attempt. Body is the
// opaque receiver response, kept for logging only.
type ForwardResult struct {
	OK   bool
	Body []byte
}

// statusResponse is the registration-status payload. Any shape mismatch is
// treated as a uniform transport failure.
type statusResponse struct {
	Success    bool `json:"success"`
	Registered bool `json:"registered"`
	User       *struct {
		Email        string `json:"email"`
		RegisteredAt string `json:"registeredAt"`
	} `json:"user"`
}

// initiateResponse is the OAuth-initiation payload.
type initiateResponse struct {
	Success bool   `json:"success"`
	AuthURL string `json:"authUrl"`
	Error   string `json:"error"`
}

type initiateRequest struct {
	DiscordID       string `json:"discordId"`
	DiscordUsername string `json:"discordUsername"`
}

// forwardResponse is the ingestion payload. Only decodability and the HTTP
// status decide success; the fields are informational.
type forwardResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
