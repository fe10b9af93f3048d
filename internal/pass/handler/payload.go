package handler

import "walletpass/internal/pass/models"

// webhookPayload is the subset of the Cloud API notification we read.
type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Image     *inboundImage `json:"image,omitempty"`
}

type inboundImage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
}

// firstMessage returns entry[0].changes[0].value.messages[0], if present.
func (p webhookPayload) firstMessage() (inboundMessage, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return inboundMessage{}, false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return inboundMessage{}, false
	}
	return msgs[0], true
}

func (m inboundMessage) isImage() bool {
	return m.Type == "image" && m.Image != nil && m.Image.ID != ""
}

func (m inboundMessage) imageRef() models.ImageRef {
	return models.ImageRef{
		MessageID: m.ID,
		ImageID:   m.Image.ID,
		Sender:    m.From,
		MimeType:  m.Image.MimeType,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type passResponse struct {
	PassURL string `json:"passUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}
