package models

// NoFixedDate marks an exam with rolling admission instead of a scheduled date.
const NoFixedDate = "상시"

// ExamLocation is a single exam site.
type ExamLocation struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
}

// ExamRound is one scheduled sitting of a certification exam.
type ExamRound struct {
	Round                      string         `json:"round"`
	RegistrationStart          string         `json:"registrationStart"`
	RegistrationEnd            string         `json:"registrationEnd"`
	WrittenExam                string         `json:"writtenExam"`
	PracticalRegistrationStart string         `json:"practicalRegistrationStart,omitempty"`
	PracticalRegistrationEnd   string         `json:"practicalRegistrationEnd,omitempty"`
	PracticalExam              string         `json:"practicalExam,omitempty"`
	ResultDate                 string         `json:"resultDate"`
	WrittenFee                 int            `json:"writtenFee"`
	PracticalFee               *int           `json:"practicalFee,omitempty"`
	Locations                  []ExamLocation `json:"locations"`
}

// Certification groups the rounds of one license.
type Certification struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Difficulty  string      `json:"difficulty"`
	Description string      `json:"description"`
	Agency      string      `json:"agency"`
	Exams       []ExamRound `json:"exams"`
}

// LicenseSearchResult is one hit from the backend's keyword search.
type LicenseSearchResult struct {
	URI   string `json:"uri"`
	Label string `json:"label"`
	Desc  string `json:"desc,omitempty"`
}
