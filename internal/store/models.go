package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

type Client struct {
	ID           string
	Name         string
	ClientType   string
	Industry     string
	ContactName  string
	ContactEmail string
	CreatedAt    time.Time
}

// Project lifecycle states. Answers are writable only while a project
// is in DRAFT.
const (
	ProjectDraft     = "DRAFT"
	ProjectSubmitted = "SUBMITTED"
)

type Project struct {
	ID          string
	ClientID    string
	Name        string
	ProjectType string
	Complexity  string
	Budget      string
	Timeline    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Questionnaire struct {
	ID          string
	Name        string
	Version     int
	Description string
	IsActive    bool
	Questions   []Question
}

// Question input types.
const (
	QuestionText     = "TEXT"
	QuestionTextarea = "TEXTAREA"
	QuestionDropdown = "DROPDOWN"
	QuestionCheckbox = "CHECKBOX"
)

// ShowIf gates a question's visibility on another question's answer.
type ShowIf struct {
	QuestionID string
	Equals     string
}

type Question struct {
	ID              string
	QuestionnaireID string
	Phase           string
	Order           int
	QuestionText    string
	Type            string
	Options         []string
	ShowIf          *ShowIf
}

type Answer struct {
	ProjectID  string
	QuestionID string
	Value      string
	UpdatedAt  time.Time
}

type Proposal struct {
	ID        string
	ProjectID string
	Version   int
	HTML      string
	CreatedAt time.Time
}
