package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadRecord is the persisted row for an accepted upload.
type UploadRecord struct {
	ID               string    `db:"id" json:"id"`
	OwnerID          string    `db:"owner_id" json:"ownerId"`
	SecureFilename   string    `db:"secure_filename" json:"secureFilename"`
	OriginalFilename string    `db:"original_filename" json:"originalFilename"`
	MimeType         string    `db:"mime_type" json:"mimeType"`
	SizeBytes        int64     `db:"size_bytes" json:"sizeBytes"`
	ContentHash      string    `db:"content_hash" json:"contentHash"`
	Width            int       `db:"width" json:"width"`
	Height           int       `db:"height" json:"height"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// JWTClaims is the token payload carried by authenticated requests.
type JWTClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
