package ocr

import (
	"fmt"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// ParseVisionJSON parses a saved Vision annotate response of the shape
// {"responses": [{"fullTextAnnotation": {...}}]}.
func ParseVisionJSON(data []byte) (*visionpb.BatchAnnotateImagesResponse, error) {
	const op = "ParseVisionJSON"

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, NewOCRError(op, ErrInvalidResponse, "empty JSON document")
	}

	resp := &visionpb.BatchAnnotateImagesResponse{}
	if err := unmarshalOptions.Unmarshal(data, resp); err != nil {
		return nil, NewOCRError(op, ErrInvalidResponse, fmt.Sprintf("malformed JSON: %v", err))
	}

	return resp, nil
}

// ParseDocumentAIJSON parses a saved Document AI document. Both a bare Document
// and a ProcessResponse wrapping it under "document" are accepted.
func ParseDocumentAIJSON(data []byte) (*documentaipb.Document, error) {
	const op = "ParseDocumentAIJSON"

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, NewOCRError(op, ErrInvalidResponse, "empty JSON document")
	}

	processResp := &documentaipb.ProcessResponse{}
	if err := unmarshalOptions.Unmarshal(data, processResp); err == nil && processResp.GetDocument() != nil {
		return processResp.GetDocument(), nil
	}

	doc := &documentaipb.Document{}
	if err := unmarshalOptions.Unmarshal(data, doc); err != nil {
		return nil, NewOCRError(op, ErrInvalidResponse, fmt.Sprintf("malformed JSON: %v", err))
	}

	return doc, nil
}

// MarshalRaw renders a raw OCR response as indented JSON that the Parse
// functions read back.
func MarshalRaw(msg proto.Message) ([]byte, error) {
	if msg == nil {
		return nil, NewOCRError("MarshalRaw", ErrInvalidResponse, "no raw response to marshal")
	}

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		return nil, WrapOCRError("MarshalRaw", err, "failed to marshal response")
	}
	return data, nil
}

// MergeFileResponse folds the per-page image responses of a file annotation into
// a single annotate response whose fullTextAnnotation holds one page per PDF
// page. Pages without an annotation are kept as empty pages so that page
// indices stay aligned with the PDF.
func MergeFileResponse(fileResp *visionpb.AnnotateFileResponse) (*visionpb.BatchAnnotateImagesResponse, error) {
	const op = "MergeFileResponse"

	if fileResp == nil {
		return nil, NewOCRError(op, ErrInvalidResponse, "no file response")
	}
	if fileResp.GetError() != nil && fileResp.GetError().GetCode() != 0 {
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.GetError().GetMessage()))
	}
	if len(fileResp.GetResponses()) == 0 {
		return nil, NewOCRError(op, ErrEmptyDocument, "file response has no pages")
	}

	merged := &visionpb.TextAnnotation{}
	var text strings.Builder

	for pageIdx, pageResp := range fileResp.GetResponses() {
		if pageResp.GetError() != nil && pageResp.GetError().GetCode() != 0 {
			return nil, NewOCRError(op, ErrOCRFailed,
				fmt.Sprintf("error processing page %d: %s", pageIdx+1, pageResp.GetError().GetMessage()))
		}

		annotation := pageResp.GetFullTextAnnotation()
		if annotation == nil || len(annotation.GetPages()) == 0 {
			merged.Pages = append(merged.Pages, &visionpb.Page{})
			continue
		}

		// Each image response describes exactly one PDF page.
		merged.Pages = append(merged.Pages, annotation.GetPages()[0])
		text.WriteString(annotation.GetText())
	}

	merged.Text = text.String()

	return &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{
			{FullTextAnnotation: merged},
		},
	}, nil
}
