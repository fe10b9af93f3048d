package assembler

import (
	"encoding/json"
	"strings"
)

const (
	formatVersion          = 1
	defaultBarcodeFormat   = "PKBarcodeFormatQR"
	defaultMessageEncoding = "iso-8859-1"
)

// Template is the static part of every pass.
type Template struct {
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	Description        string
	ForegroundColor    string
	BackgroundColor    string
	LabelColor         string
	HeaderLabel        string
	NameLabel          string
	IncludeBarcode     bool
	BarcodeFormat      string
	MessageEncoding    string
}

// DefaultTemplate returns the stock look; identifiers must still be set.
func DefaultTemplate() Template {
	return Template{
		Description:     "Digital ID Pass",
		ForegroundColor: "rgb(255,255,255)",
		BackgroundColor: "rgb(60,65,70)",
		LabelColor:      "rgb(255,255,255)",
		HeaderLabel:     "Digital ID",
		NameLabel:       "Full Name",
		IncludeBarcode:  true,
		BarcodeFormat:   defaultBarcodeFormat,
		MessageEncoding: defaultMessageEncoding,
	}
}

// passJSON is the pass.json document.
type passJSON struct {
	FormatVersion      int           `json:"formatVersion"`
	PassTypeIdentifier string        `json:"passTypeIdentifier"`
	SerialNumber       string        `json:"serialNumber"`
	TeamIdentifier     string        `json:"teamIdentifier"`
	OrganizationName   string        `json:"organizationName"`
	Description        string        `json:"description"`
	ForegroundColor    string        `json:"foregroundColor,omitempty"`
	BackgroundColor    string        `json:"backgroundColor,omitempty"`
	LabelColor         string        `json:"labelColor,omitempty"`
	Generic            passStructure `json:"generic"`
	Barcode            *passBarcode  `json:"barcode,omitempty"`
	Barcodes           []passBarcode `json:"barcodes,omitempty"`
}

type passStructure struct {
	HeaderFields  []passField `json:"headerFields"`
	PrimaryFields []passField `json:"primaryFields"`
}

type passField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type passBarcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// manifest renders pass.json for one pass.
func (t Template) manifest(serial, name, barcode string) ([]byte, error) {
	doc := passJSON{
		FormatVersion:      formatVersion,
		PassTypeIdentifier: t.PassTypeIdentifier,
		SerialNumber:       serial,
		TeamIdentifier:     t.TeamIdentifier,
		OrganizationName:   t.OrganizationName,
		Description:        t.Description,
		ForegroundColor:    t.ForegroundColor,
		BackgroundColor:    t.BackgroundColor,
		LabelColor:         t.LabelColor,
		Generic: passStructure{
			HeaderFields:  []passField{{Key: "header", Label: t.HeaderLabel, Value: ""}},
			PrimaryFields: []passField{{Key: "name", Label: t.NameLabel, Value: name}},
		},
	}
	if t.IncludeBarcode {
		bc := passBarcode{
			Format:          orDefault(t.BarcodeFormat, defaultBarcodeFormat),
			Message:         barcode,
			MessageEncoding: orDefault(t.MessageEncoding, defaultMessageEncoding),
		}
		doc.Barcode = &bc
		doc.Barcodes = []passBarcode{bc}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
