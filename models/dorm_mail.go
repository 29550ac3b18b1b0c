package models

// MailRecord is one unclaimed parcel or registered letter listed on the dorm mail page
type MailRecord struct {
	ID               string `json:"id"`
	ArrivalTime      string `json:"arrival_time"`
	Recipient        string `json:"recipient"`
	Carrier          string `json:"carrier"`
	Type             string `json:"type"`
	TrackingNumber   string `json:"tracking_number"`
	Department       string `json:"department"`
	DaysSinceArrival string `json:"days_since_arrival"`
}

// MailListResponse is the success payload of the dorm mail endpoint
type MailListResponse struct {
	Success  bool         `json:"success"`
	Data     []MailRecord `json:"data"`
	Count    int          `json:"count"`
	CachedAt string       `json:"cached_at"`
}

// ErrorResponse is the failure payload shared by every dorm mail route
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MailRecordWithDeadline decorates a record with the pickup countdown used by the dashboard
type MailRecordWithDeadline struct {
	MailRecord
	RemainingDays int `json:"remaining_days"`
}
