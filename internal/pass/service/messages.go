package service

import "strings"

// NotifyStyle selects how the finished pass reaches the sender.
type NotifyStyle string

const (
	// NotifyText sends the pass URL inside a text message.
	NotifyText NotifyStyle = "text"
	// NotifyDocument sends the pass itself as a document attachment.
	NotifyDocument NotifyStyle = "document"
)

// Messages are the user-facing texts. Ready must contain {url}.
type Messages struct {
	AskForImage     string
	NoFace          string
	Failure         string
	Ready           string
	DocumentCaption string
}

func DefaultMessages() Messages {
	return Messages{
		AskForImage:     "Por favor envía una imagen para generar tu pase.",
		NoFace:          "No se detectó rostro. Intenta con otra imagen.",
		Failure:         "Lo siento, ocurrió un error generando tu pase. Inténtalo de nuevo.",
		Ready:           "¡Tu pase está listo! Descárgalo aquí: {url}",
		DocumentCaption: "¡Tu pase está listo!",
	}
}

func (m Messages) ready(url string) string {
	return strings.ReplaceAll(m.Ready, "{url}", url)
}
