package models

import (
	"time"

	"github.com/google/uuid"
)

// Provinces lists the provinces publishers are grouped by.
var Provinces = []string{
	"Eastern Cape",
	"Free State",
	"Gauteng",
	"KwaZulu-Natal",
	"Limpopo",
	"Mpumalanga",
	"North West",
	"Northern Cape",
	"Western Cape",
}

// IsProvince reports whether name is a known province.
func IsProvince(name string) bool {
	for _, p := range Provinces {
		if p == name {
			return true
		}
	}
	return false
}

// Publisher is a government body that publishes tenders.
type Publisher struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Province     string    `json:"province"`
	Website      string    `json:"website,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProvinceSummary is a province with the number of publishers in it.
type ProvinceSummary struct {
	Name           string `json:"name"`
	PublisherCount int    `json:"publisher_count"`
}
