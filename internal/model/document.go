package model

import "time"

// Fields are the six values extracted from an identity document.
type Fields struct {
	Name          string
	AadhaarNumber string
	DOB           string
	Address       string
	Gender        string
	PhoneNumber   string
}

// DocumentRecord is the persisted result of one successful extraction.
// ID and CreatedAt are assigned by the persistence layer on insert.
type DocumentRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AadhaarNumber string    `json:"aadhaarNumber"`
	DOB           string    `json:"dob"`
	Address       string    `json:"address"`
	Gender        string    `json:"gender"`
	PhoneNumber   string    `json:"phoneNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewDocumentRecord builds an unsaved record from mapped fields.
func NewDocumentRecord(f Fields) *DocumentRecord {
	return &DocumentRecord{
		Name:          f.Name,
		AadhaarNumber: f.AadhaarNumber,
		DOB:           f.DOB,
		Address:       f.Address,
		Gender:        f.Gender,
		PhoneNumber:   f.PhoneNumber,
	}
}
