package model

// SendRequest is one outbound dispatch: optional text plus zero or more media items.
type SendRequest struct {
	Destination string
	Text        string
	Media       []MediaDescriptor
}

// OutcomeError is the per-item failure recorded by the dispatcher.
type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendOutcome is the result of a single send attempt.
type SendOutcome struct {
	Index     int           `json:"index"`
	MessageID string        `json:"messageId,omitempty"`
	Caption   bool          `json:"caption,omitempty"`
	Error     *OutcomeError `json:"error,omitempty"`
}

func (o SendOutcome) Succeeded() bool {
	return o.Error == nil
}
