package types

// Metadata keys stored alongside every email in the vector index.
const (
	FieldType       = "type"
	FieldSubject    = "subject"
	FieldSenderName = "sender_name"
	FieldFolderPath = "folder_path"
	FieldBody       = "body"
)

// Email is a single normalized document produced by the archive reader
type Email struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	Subject    string `json:"subject"`
	SenderName string `json:"sender_name"`
	FolderPath string `json:"folder_path"`
	Body       string `json:"body"`
}

// Metadata returns the email fields in the shape stored by the vector index
func (e Email) Metadata() map[string]string {
	return map[string]string{
		FieldType:       e.Type,
		FieldSubject:    e.Subject,
		FieldSenderName: e.SenderName,
		FieldFolderPath: e.FolderPath,
		FieldBody:       e.Body,
	}
}

// EmailFromMetadata rebuilds an email from index metadata, missing fields become empty strings
func EmailFromMetadata(id string, metadata map[string]string) Email {
	return Email{
		ID:         id,
		Type:       metadata[FieldType],
		Subject:    metadata[FieldSubject],
		SenderName: metadata[FieldSenderName],
		FolderPath: metadata[FieldFolderPath],
		Body:       metadata[FieldBody],
	}
}
