package dto

import "time"

// UploadResponse is returned for an accepted upload.
type UploadResponse struct {
	ID               string    `json:"id"`
	SecureFilename   string    `json:"secureFilename"`
	OriginalFilename string    `json:"originalFilename"`
	MimeType         string    `json:"mimeType"`
	SizeBytes        int64     `json:"sizeBytes"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Warnings         []string  `json:"warnings,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UploadRejection describes why a file was refused.
type UploadRejection struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
	RiskTier string   `json:"riskTier,omitempty"`
}

// QuarantineItem is the admin-facing view of one quarantined file.
type QuarantineItem struct {
	QuarantineID     string    `json:"quarantineId"`
	OriginalFilename string    `json:"originalFilename"`
	FileHash         string    `json:"fileHash"`
	SizeBytes        int64     `json:"sizeBytes"`
	Reason           string    `json:"reason"`
	QuarantinedAt    time.Time `json:"quarantinedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// ReportRequest selects the export window and format.
type ReportRequest struct {
	Hours  int    `form:"hours" binding:"omitempty,min=1,max=168"`
	Format string `form:"format" binding:"omitempty,oneof=csv pdf"`
}
