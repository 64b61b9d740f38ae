package ocr

import (
	"fmt"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"searchpdf/pkg/models"
)

// NormalizeDocumentAI converts a Document AI document into pages, one word per
// token. Token text is resolved from its text anchor against document.text.
func NormalizeDocumentAI(doc *documentaipb.Document) ([]models.Page, error) {
	const op = "NormalizeDocumentAI"

	if doc == nil {
		return nil, NewOCRError(op, ErrInvalidResponse, "no document present")
	}

	text := []rune(doc.GetText())
	pages := make([]models.Page, 0, len(doc.GetPages()))

	for pageIdx, docPage := range doc.GetPages() {
		words := make([]models.Word, 0, len(docPage.GetTokens()))

		for tokenIdx, token := range docPage.GetTokens() {
			layout := token.GetLayout()
			if layout == nil || layout.GetBoundingPoly() == nil {
				return nil, NewOCRError(op, ErrInvalidResponse,
					fmt.Sprintf("page %d token %d: missing boundingPoly", pageIdx, tokenIdx))
			}

			box, err := boundingBoxFromVertices(layout.GetBoundingPoly().GetNormalizedVertices())
			if err != nil {
				return nil, NewOCRError(op, ErrInvalidResponse,
					fmt.Sprintf("page %d token %d: %v", pageIdx, tokenIdx, err))
			}

			tokenText, err := anchorText(text, layout.GetTextAnchor())
			if err != nil {
				return nil, NewOCRError(op, ErrInvalidResponse,
					fmt.Sprintf("page %d token %d: %v", pageIdx, tokenIdx, err))
			}

			words = append(words, models.Word{BoundingBox: box, Text: tokenText})
		}

		pages = append(pages, models.Page{Index: pageIdx, Words: words})
	}

	return pages, nil
}

// anchorText returns the trimmed text referenced by anchor. Segment indices
// count characters, not bytes.
func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) (string, error) {
	if anchor == nil {
		return "", nil
	}
	if len(anchor.GetTextSegments()) == 0 {
		return strings.TrimSpace(anchor.GetContent()), nil
	}

	var sb strings.Builder
	for _, segment := range anchor.GetTextSegments() {
		start, end := segment.GetStartIndex(), segment.GetEndIndex()
		if start < 0 || end < start || end > int64(len(text)) {
			return "", fmt.Errorf("text segment [%d, %d) out of range for %d characters", start, end, len(text))
		}
		sb.WriteString(string(text[start:end]))
	}

	return strings.TrimSpace(sb.String()), nil
}
