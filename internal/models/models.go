package models

import "strings"

// Role tags a message in a prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType distinguishes the content kinds a message can carry.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Image is an encoded image embedded in a prompt.
type Image struct {
	MediaType string
	// Base64 holds the standard base64 encoding of the raw image bytes.
	Base64 string
}

// DataURL renders the image as a data: URI.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64
}

// Part is a single piece of message content.
type Part struct {
	Type  PartType
	Text  string
	Image *Image
}

// TextPart returns a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image content part.
func ImagePart(img Image) Part {
	return Part{Type: PartImage, Image: &img}
}

// Message is a role-tagged entry in a prompt.
type Message struct {
	Role  Role
	Parts []Part
}

// TextMessage builds a message holding a single text part.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// Text concatenates every text part of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasImage reports whether any part of the message is an image.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage && p.Image != nil {
			return true
		}
	}
	return false
}

// Prompt is the ordered message sequence sent to a completion service.
type Prompt []Message

// System returns the concatenated text of all system messages.
func (p Prompt) System() string {
	var parts []string
	for _, m := range p {
		if m.Role == RoleSystem {
			if text := strings.TrimSpace(m.Text()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// CompletionRequest is the canonical representation of a completion call.
type CompletionRequest struct {
	Model       string
	Messages    Prompt
	MaxTokens   int
	Temperature *float64
}

// Completion captures a finished provider response.
type Completion struct {
	ID           string
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
