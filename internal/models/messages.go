package models

// Attachment is a file the client attached to a chat message
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitzero"`
	ContentType string `json:"contentType,omitzero"`
	// Data optionally carries the file inline, base64 encoded
	Data string `json:"data,omitzero"`
}

// ChatMessage is one message of the conversation sent by the client
type ChatMessage struct {
	ID          string       `json:"id,omitzero"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitzero"`
}

// ChatRequest is the body of POST /v1/chat
type ChatRequest struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
	ModelID  string        `json:"modelId"`
}

// DocumentRequest is the body of the document endpoints
type DocumentRequest struct {
	ID      string `json:"id,omitzero"`
	Title   string `json:"title,omitzero"`
	Content string `json:"content"`
}

// MedicalHistoryPayload is the structured medical history a user keeps on file
type MedicalHistoryPayload struct {
	Allergies     string `json:"allergies,omitzero"`
	Medications   string `json:"medications,omitzero"`
	Conditions    string `json:"conditions,omitzero"`
	FamilyHistory string `json:"familyHistory,omitzero"`
}
