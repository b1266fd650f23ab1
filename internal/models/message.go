package models

import "time"

// Message is an append-only chat entry. A nil CourseID means the message
// belongs to the institution-wide feed.
type Message struct {
	ID        string    `db:"id" json:"id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CourseID  *string   `db:"course_id" json:"course_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageDetail joins the sender identity onto a message.
type MessageDetail struct {
	Message
	SenderName string `db:"sender_name" json:"sender_name"`
}

// MessageFilter captures listing criteria for messages.
type MessageFilter struct {
	CourseID *string
	Page     int
	PageSize int
}
