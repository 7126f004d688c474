package types

// StatusData is the payload of a job status event.
type StatusData struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Variant   string `json:"variant"`
	Status    string `json:"status"`
	PublicURL string `json:"publicUrl"`
	ErrorMsg  string `json:"errorMsg"`
}

// StatusMessage is the envelope published to the status exchange.
type StatusMessage struct {
	Pattern string     `json:"pattern"`
	Data    StatusData `json:"data"`
}

const PROCESSED = "PROCESSED"
const FAILED = "FAILED"
const PROCESSING = "PROCESSING"
