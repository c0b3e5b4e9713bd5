package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Course is a purchasable unit of the catalog. PriceAmount is in minor units.
type Course struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug        string       `gorm:"size:255;not null;uniqueIndex:ux_courses_slug" json:"slug"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Description string       `gorm:"not null;default:''" json:"description"`
	PriceAmount int64        `gorm:"not null;default:0" json:"price_amount"`
	Currency    string       `gorm:"size:3;not null;default:BDT" json:"currency"`
	IsPublished bool         `gorm:"not null;default:false" json:"is_published"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "courses" }

type Module struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseID  snowflake.ID `gorm:"not null;index" json:"course_id"`
	Title     string       `gorm:"size:255;not null" json:"title"`
	Position  int          `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Module) TableName() string { return "course_modules" }

type Lesson struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ModuleID  snowflake.ID `gorm:"not null;index" json:"module_id"`
	CourseID  snowflake.ID `gorm:"not null;index" json:"course_id"`
	Title     string       `gorm:"size:255;not null" json:"title"`
	Content   string       `gorm:"not null;default:''" json:"content,omitempty"`
	VideoURL  string       `gorm:"not null;default:''" json:"video_url,omitempty"`
	Position  int          `gorm:"not null;default:0" json:"position"`
	IsPreview bool         `gorm:"not null;default:false" json:"is_preview"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Lesson) TableName() string { return "lessons" }

// Outline strips the gated body of a lesson.
func (l Lesson) Outline() Lesson {
	l.Content = ""
	l.VideoURL = ""
	return l
}

type Resource struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseID  snowflake.ID `gorm:"not null;index" json:"course_id"`
	Title     string       `gorm:"size:255;not null" json:"title"`
	URL       string       `gorm:"not null" json:"url"`
	Kind      string       `gorm:"size:32;not null;default:link" json:"kind"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Resource) TableName() string { return "course_resources" }

type Recording struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseID   snowflake.ID `gorm:"not null;index" json:"course_id"`
	Title      string       `gorm:"size:255;not null" json:"title"`
	URL        string       `gorm:"not null" json:"url"`
	RecordedAt time.Time    `gorm:"not null" json:"recorded_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (Recording) TableName() string { return "recordings" }

// ModuleOutline is a module with its lessons, bodies stripped.
type ModuleOutline struct {
	Module
	Lessons []Lesson `json:"lessons"`
}

// CourseDetail is the public view of a course page.
type CourseDetail struct {
	Course
	Modules    []ModuleOutline `json:"modules"`
	Resources  []Resource      `json:"resources,omitempty"`
	Recordings []Recording     `json:"recordings,omitempty"`
}
