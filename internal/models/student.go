package models

import "time"

// Student represents a learner enrolled at a school.
type Student struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Grade     string    `db:"grade" json:"grade"`
	ClassName string    `db:"class_name" json:"class_name"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Class groups students under a grade label within a school.
type Class struct {
	ID       string `db:"id" json:"id"`
	SchoolID string `db:"school_id" json:"school_id"`
	Name     string `db:"name" json:"name"`
	Grade    string `db:"grade" json:"grade"`
}

// ClassAssignment links a student to a class explicitly.
type ClassAssignment struct {
	StudentID string `db:"student_id" json:"student_id"`
	ClassID   string `db:"class_id" json:"class_id"`
}
