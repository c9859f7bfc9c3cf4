package model

// MediaDescriptor is a caller-supplied attachment. At most one source is used,
// in the order LocalPath, RemoteURL, inline Data.
type MediaDescriptor struct {
	LocalPath string `json:"-"`
	RemoteURL string `json:"url,omitempty"`
	Data      string `json:"data,omitempty"`
	MimeType  string `json:"mimetype,omitempty"`
	Filename  string `json:"filename,omitempty"`

	// Release frees a locally staged resource backing the descriptor.
	Release func() `json:"-"`
}

// NormalizedMedia is an attachable media value.
type NormalizedMedia struct {
	MimeType string
	Filename string
	Data     []byte
}
