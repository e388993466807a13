package knowledge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	// Registered decoders for image dimension probing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/PuerkitoBio/goquery"

	"llm-proxy/internal/domain"
)

// excerptLen is the number of characters of extracted text retained as the
// fragment excerpt.
const excerptLen = 500

// Extract builds an index document from raw file bytes. Text is extracted
// according to the file extension; image files contribute their dimensions
// and match on filename only. Formats without an extractor (e.g. pdf) index
// with no text and fall back to filename matching.
func Extract(filename string, data []byte) (Document, error) {
	doc := Document{Name: filename, Kind: domain.FragmentText}

	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".") {
	case "txt", "md":
		doc.Text = string(data)
	case "html":
		text, err := extractHTML(data)
		if err != nil {
			return Document{}, fmt.Errorf("extract html %s: %w", filename, err)
		}
		doc.Text = text
	case "docx":
		text, err := extractDocx(data)
		if err != nil {
			return Document{}, fmt.Errorf("extract docx %s: %w", filename, err)
		}
		doc.Text = text
	case "jpg", "jpeg", "png", "gif":
		doc.Kind = domain.FragmentImage
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			doc.Width = cfg.Width
			doc.Height = cfg.Height
		}
	}

	doc.Excerpt = Excerpt(doc.Text)
	return doc, nil
}

// Excerpt returns the first 500 characters of text.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen])
}

// extractHTML pulls the visible text out of an HTML document, skipping
// script and style content.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// extractDocx reads the main document part of a docx archive and collects
// its text runs, one line per paragraph.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	var part io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("open document part: %w", err)
			}
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("no document part in archive")
	}
	defer part.Close()

	var b strings.Builder
	dec := xml.NewDecoder(part)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
