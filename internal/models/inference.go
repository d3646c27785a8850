package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Attachment is a single file sent along with a prompt.
type Attachment struct {
	Kind     AttachmentKind
	Name     string
	MIMEType string
	Data     []byte
}

// AttachmentKind selects which backend input slot an attachment is presented in.
type AttachmentKind string

const (
	AttachmentAudio AttachmentKind = "audio"
	AttachmentImage AttachmentKind = "image"
)

// DataURL encodes the attachment as a base64 data URL.
func (a Attachment) DataURL() string {
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(a.Data))
}

// GenerateRequest is what a backend receives for one generation call. At most one attachment is
// carried, and its Kind is always resolved by the time a backend sees it.
type GenerateRequest struct {
	Prompt     string
	Model      string
	Attachment *Attachment
}

// OutputKind tags the shape of a backend response.
type OutputKind string

const (
	// OutputScalar is a bare string response.
	OutputScalar OutputKind = "scalar"
	// OutputSequence is a list response whose first element is expected to be the text.
	OutputSequence OutputKind = "sequence"
	// OutputUnknown is any other shape.
	OutputUnknown OutputKind = "unknown"
)

// Output is the decoded response of a backend. Exactly one of Scalar or Sequence is meaningful,
// according to Kind.
type Output struct {
	Kind     OutputKind
	Scalar   string
	Sequence []json.RawMessage
}

// ScalarOutput wraps a plain text response.
func ScalarOutput(s string) Output {
	return Output{Kind: OutputScalar, Scalar: s}
}

// Text unwraps the output into a single string. A scalar yields its value and a sequence yields its
// first element when that element is a string. The second return value is false for every other
// shape, in which case the text is empty.
func (o Output) Text() (string, bool) {
	switch o.Kind {
	case OutputScalar:
		return o.Scalar, true
	case OutputSequence:
		if len(o.Sequence) == 0 {
			return "", false
		}
		var s string
		if err := json.Unmarshal(o.Sequence[0], &s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

// DecodeOutput decodes a raw JSON value into an Output. Strings become OutputScalar, arrays become
// OutputSequence, and every other valid JSON value becomes OutputUnknown. Only invalid JSON is an error.
func DecodeOutput(raw json.RawMessage) (Output, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Output{}, fmt.Errorf("empty response data")
	}
	if !json.Valid(raw) {
		return Output{}, fmt.Errorf("invalid response data: %s", raw)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Output{}, fmt.Errorf("failed to unmarshal scalar output: %w", err)
		}
		return ScalarOutput(s), nil
	case '[':
		var seq []json.RawMessage
		if err := json.Unmarshal(raw, &seq); err != nil {
			return Output{}, fmt.Errorf("failed to unmarshal sequence output: %w", err)
		}
		return Output{Kind: OutputSequence, Sequence: seq}, nil
	}
	return Output{Kind: OutputUnknown}, nil
}
