// Package herd holds the CowTracker domain entities and the cached resource
// service that reads them through the cache and keeps it consistent after
// mutations.
package herd

import "time"

// Farm is a property holding cattle.
type Farm struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	Size        float64   `json:"size,omitempty"`
	CattleCount int       `json:"cattleCount"`
	OwnerID     string    `json:"ownerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// CattleItem is a single animal.
type CattleItem struct {
	ID                   string    `json:"id"`
	IdentificationNumber string    `json:"identificationNumber"`
	Name                 string    `json:"name,omitempty"`
	Breed                string    `json:"breed,omitempty"`
	Gender               string    `json:"gender,omitempty"`
	Status               string    `json:"status,omitempty"`
	Weight               float64   `json:"weight,omitempty"`
	FarmID               string    `json:"farmId,omitempty"`
	BirthDate            time.Time `json:"birthDate,omitzero"`
	UpdatedAt            time.Time `json:"updatedAt,omitzero"`
}

// MedicalRecord is a treatment, vaccination or check-up of one animal.
type MedicalRecord struct {
	ID           string    `json:"id"`
	CattleID     string    `json:"cattleId"`
	Type         string    `json:"type"`
	Date         time.Time `json:"date"`
	Description  string    `json:"description,omitempty"`
	Treatment    string    `json:"treatment,omitempty"`
	Veterinarian string    `json:"veterinarian,omitempty"`
	Cost         float64   `json:"cost,omitempty"`
}

// UserInfo describes an account.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ReportData is a herd summary for one farm or, with an empty FarmID, for
// every farm the user can see.
type ReportData struct {
	FarmID         string         `json:"farmId,omitempty"`
	TotalCattle    int            `json:"totalCattle"`
	ByStatus       map[string]int `json:"byStatus,omitempty"`
	ByBreed        map[string]int `json:"byBreed,omitempty"`
	ByGender       map[string]int `json:"byGender,omitempty"`
	AverageWeight  float64        `json:"averageWeight,omitempty"`
	MedicalRecords int            `json:"medicalRecords"`
	MedicalCost    float64        `json:"medicalCost,omitempty"`
	GeneratedAt    time.Time      `json:"generatedAt,omitzero"`
}
