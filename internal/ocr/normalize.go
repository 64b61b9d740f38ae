package ocr

import (
	"fmt"
	"strings"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"searchpdf/pkg/models"
)

// cornerCount is the number of polygon vertices consumed per word.
const cornerCount = 4

// NormalizeVision converts a Vision annotate response into pages.
// Only resp.Responses[0] is honored.
func NormalizeVision(resp *visionpb.BatchAnnotateImagesResponse) ([]models.Page, error) {
	const op = "NormalizeVision"

	if resp == nil || len(resp.GetResponses()) == 0 {
		return nil, NewOCRError(op, ErrInvalidResponse, "no responses present")
	}

	if n := len(resp.GetResponses()); n > 1 {
		log.Debug().Int("responses", n).Msg("Ignoring annotate responses beyond the first")
	}

	annotateResp := resp.GetResponses()[0]
	if annotateResp == nil {
		return nil, NewOCRError(op, ErrInvalidResponse, "responses[0] is empty")
	}
	if annotateResp.GetError() != nil && annotateResp.GetError().GetCode() != 0 {
		return nil, NewOCRError(op, ErrInvalidResponse,
			fmt.Sprintf("responses[0] carries an error: %s", annotateResp.GetError().GetMessage()))
	}

	annotation := annotateResp.GetFullTextAnnotation()
	if annotation == nil {
		return nil, NewOCRError(op, ErrInvalidResponse, "responses[0] has no fullTextAnnotation")
	}

	pages := make([]models.Page, 0, len(annotation.GetPages()))
	for pageIdx, visionPage := range annotation.GetPages() {
		page, err := normalizeVisionPage(pageIdx, visionPage)
		if err != nil {
			return nil, NewOCRError(op, ErrInvalidResponse, err.Error())
		}
		pages = append(pages, page)
	}

	return pages, nil
}

func normalizeVisionPage(pageIdx int, page *visionpb.Page) (models.Page, error) {
	var words []models.Word
	wordIdx := 0

	for _, block := range page.GetBlocks() {
		for _, paragraph := range block.GetParagraphs() {
			for _, visionWord := range paragraph.GetWords() {
				word, err := normalizeVisionWord(visionWord)
				if err != nil {
					return models.Page{}, fmt.Errorf("page %d word %d: %w", pageIdx, wordIdx, err)
				}
				words = append(words, word)
				wordIdx++
			}
		}
	}

	return models.Page{Index: pageIdx, Words: words}, nil
}

func normalizeVisionWord(word *visionpb.Word) (models.Word, error) {
	if word.GetBoundingBox() == nil {
		return models.Word{}, fmt.Errorf("missing boundingBox")
	}

	box, err := boundingBoxFromVertices(word.GetBoundingBox().GetNormalizedVertices())
	if err != nil {
		return models.Word{}, err
	}

	var text strings.Builder
	for _, symbol := range word.GetSymbols() {
		text.WriteString(symbol.GetText())
	}

	return models.Word{BoundingBox: box, Text: text.String()}, nil
}

// normalizedVertex is satisfied by both the Vision and the Document AI vertex types.
type normalizedVertex interface {
	GetX() float32
	GetY() float32
}

func boundingBoxFromVertices[V normalizedVertex](vertices []V) (models.BoundingBox, error) {
	if len(vertices) < cornerCount {
		return models.BoundingBox{}, fmt.Errorf("expected %d normalized vertices, got %d", cornerCount, len(vertices))
	}

	return models.BoundingBox{
		TopLeft:     position(vertices[0]),
		TopRight:    position(vertices[1]),
		BottomRight: position(vertices[2]),
		BottomLeft:  position(vertices[3]),
	}, nil
}

// position converts a float32 vertex using its shortest decimal representation,
// so a JSON value of 0.1 becomes exactly 0.1.
func position(v normalizedVertex) models.Position {
	return models.NewPosition(decimal.NewFromFloat32(v.GetX()), decimal.NewFromFloat32(v.GetY()))
}
