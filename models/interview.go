package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/google/uuid"
)

// Interview statuses. The progression is monotonic: pending -> in-progress
// -> completed. SaveAnswer never moves a record backwards and never sets
// completed on its own.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Experience levels accepted by the setup form.
const (
	LevelFresher  = "Fresher"
	LevelMidLevel = "Mid-Level"
	LevelSenior   = "Senior"
)

// Answer is one answered question. QuestionIndex is unique within an
// interview; re-answering replaces the previous entry for the same index.
type Answer struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// Feedback is the AI-generated post-interview report. Present only once the
// interview is completed.
type Feedback struct {
	OverallScore       float64 `json:"overallScore"` // 0 to 10
	Strengths          string  `json:"strengths"`
	AreasOfImprovement string  `json:"areasOfImprovement"`
}

// Interview is the persisted record of one mock-interview attempt. The
// question list is fixed at creation; answers accumulate one entry per
// question index. Deletion is a hard delete, so there is no DeletedAt column.
type Interview struct {
	ID                     string                        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 string                        `gorm:"type:uuid;not null;index:idx_interviews_owner_created,priority:1" json:"user_id"`
	Role                   string                        `gorm:"size:255;not null" json:"role"`
	ExperienceLevel        string                        `gorm:"size:50;not null" json:"experience_level"`
	JobDescriptionKeywords string                        `gorm:"type:text" json:"job_description_keywords"`
	Questions              datatypes.JSONSlice[string]   `gorm:"not null" json:"questions"`
	Answers                datatypes.JSONSlice[Answer]   `gorm:"not null" json:"answers"`
	Status                 string                        `gorm:"not null;default:'pending';check:status IN ('pending', 'in-progress', 'completed')" json:"status"`
	Feedback               *datatypes.JSONType[Feedback] `json:"feedback,omitempty"`
	CreatedAt              time.Time                     `gorm:"not null;index:idx_interviews_owner_created,priority:2,sort:desc" json:"created_at"`
	CompletedAt            *time.Time                    `json:"completed_at,omitempty"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns the ID here rather than relying on a database default
// so SQLite and Postgres behave identically.
func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// Plain converts the row into the boundary shape handed to sessions and
// handlers, with timestamps normalized away from the store's native type.
func (i *Interview) Plain() *PlainInterview {
	p := &PlainInterview{
		ID:                     i.ID,
		UserID:                 i.UserID,
		Role:                   i.Role,
		ExperienceLevel:        i.ExperienceLevel,
		JobDescriptionKeywords: i.JobDescriptionKeywords,
		Questions:              append([]string{}, i.Questions...),
		Answers:                append([]Answer{}, i.Answers...),
		Status:                 i.Status,
		CreatedAt:              NewTimestamp(i.CreatedAt),
	}
	if i.CompletedAt != nil {
		p.CompletedAt = NewTimestamp(*i.CompletedAt)
	}
	if i.Feedback != nil {
		fb := i.Feedback.Data()
		p.Feedback = &fb
	}
	return p
}

// PlainInterview is the store-agnostic view of an interview. Everything past
// the repository boundary works with this shape, never with the GORM row.
type PlainInterview struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"user_id"`
	Role                   string     `json:"role"`
	ExperienceLevel        string     `json:"experience_level"`
	JobDescriptionKeywords string     `json:"job_description_keywords"`
	Questions              []string   `json:"questions"`
	Answers                []Answer   `json:"answers"`
	Status                 string     `json:"status"`
	Feedback               *Feedback  `json:"feedback,omitempty"`
	CreatedAt              *Timestamp `json:"created_at"`
	CompletedAt            *Timestamp `json:"completed_at,omitempty"`
}

// AnswerFor returns the answer stored for a question index, if any.
func (p *PlainInterview) AnswerFor(index int) (Answer, bool) {
	for _, a := range p.Answers {
		if a.QuestionIndex == index {
			return a, true
		}
	}
	return Answer{}, false
}

// InterviewPage is one page of a paginated history listing. NextCursor is the
// id of the last returned interview, or empty when the page is empty.
type InterviewPage struct {
	Interviews []PlainInterview `json:"interviews"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ValidExperienceLevel reports whether level is one of the accepted values.
func ValidExperienceLevel(level string) bool {
	switch level {
	case LevelFresher, LevelMidLevel, LevelSenior:
		return true
	}
	return false
}
