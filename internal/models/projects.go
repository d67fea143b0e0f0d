package models

import "time"

// Chat is a conversation owned by one user
type Chat struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"index;not null;size:255" json:"userId"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (Chat) TableName() string {
	return "chats"
}

// Message is a persisted chat message. Attachments are stored as JSON.
type Message struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	ChatID      string    `gorm:"index;not null;size:64" json:"chatId"`
	Role        string    `gorm:"size:16;not null" json:"role"`
	Content     string    `gorm:"type:text" json:"content"`
	Attachments string    `gorm:"type:text" json:"attachments,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// Document is a user-owned text document
type Document struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"index;not null;size:255" json:"userId"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}

// MedicalHistory holds a user's medical history as a JSON document
type MedicalHistory struct {
	UserID    string    `gorm:"primaryKey;size:255" json:"userId"`
	Data      string    `gorm:"type:text" json:"data"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (MedicalHistory) TableName() string {
	return "medical_histories"
}
