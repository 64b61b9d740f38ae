package ocr

import (
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"

	"searchpdf/pkg/models"
)

const twoPageVisionJSON = `{
  "responses": [
    {
      "fullTextAnnotation": {
        "text": "Invoice 42\nTotal",
        "pages": [
          {
            "width": 1240,
            "height": 1754,
            "blocks": [
              {
                "paragraphs": [
                  {
                    "words": [
                      {
                        "boundingBox": {"normalizedVertices": [
                          {"x": 0.1, "y": 0.05}, {"x": 0.3, "y": 0.05},
                          {"x": 0.3, "y": 0.08}, {"x": 0.1, "y": 0.08}
                        ]},
                        "symbols": [{"text": "I"}, {"text": "n"}, {"text": "v"}, {"text": "o"}, {"text": "i"}, {"text": "c"}, {"text": "e"}]
                      },
                      {
                        "boundingBox": {"normalizedVertices": [
                          {"x": 0.32, "y": 0.05}, {"x": 0.4, "y": 0.05},
                          {"x": 0.4, "y": 0.08}, {"x": 0.32, "y": 0.08}
                        ]},
                        "symbols": [{"text": "4"}, {"text": "2"}]
                      }
                    ]
                  }
                ]
              },
              {
                "paragraphs": [
                  {
                    "words": [
                      {
                        "boundingBox": {"normalizedVertices": [
                          {"x": 0.1, "y": 0.9}, {"x": 0.2, "y": 0.9},
                          {"x": 0.2, "y": 0.93}, {"x": 0.1, "y": 0.93},
                          {"x": 0.1, "y": 0.9}
                        ]},
                        "symbols": [{"text": "Total"}]
                      }
                    ]
                  }
                ]
              }
            ]
          },
          {
            "blocks": [
              {
                "paragraphs": [
                  {
                    "words": [
                      {
                        "boundingBox": {"normalizedVertices": [
                          {"x": 0.5, "y": 0.5}, {"x": 0.6, "y": 0.5},
                          {"x": 0.6, "y": 0.52}, {"x": 0.5, "y": 0.52}
                        ]}
                      }
                    ]
                  }
                ]
              }
            ]
          }
        ]
      }
    },
    {
      "fullTextAnnotation": {"pages": [{}]}
    }
  ]
}`

func dec(t *testing.T, p models.Position) (string, string) {
	t.Helper()
	return p.X.String(), p.Y.String()
}

func TestNormalizeVision(t *testing.T) {
	resp, err := ParseVisionJSON([]byte(twoPageVisionJSON))
	require.NoError(t, err)

	pages, err := NormalizeVision(resp)
	require.NoError(t, err)

	// Only responses[0] is used: the second response is ignored.
	require.Len(t, pages, 2)

	assert.Equal(t, 0, pages[0].Index)
	require.Len(t, pages[0].Words, 3, "blocks and paragraphs are flattened")
	assert.Equal(t, "Invoice", pages[0].Words[0].Text)
	assert.Equal(t, "42", pages[0].Words[1].Text)
	assert.Equal(t, "Total", pages[0].Words[2].Text)

	box := pages[0].Words[0].BoundingBox
	x, y := dec(t, box.TopLeft)
	assert.Equal(t, []string{"0.1", "0.05"}, []string{x, y})
	x, y = dec(t, box.TopRight)
	assert.Equal(t, []string{"0.3", "0.05"}, []string{x, y})
	x, y = dec(t, box.BottomRight)
	assert.Equal(t, []string{"0.3", "0.08"}, []string{x, y})
	x, y = dec(t, box.BottomLeft)
	assert.Equal(t, []string{"0.1", "0.08"}, []string{x, y})

	// Extra vertices beyond four are ignored.
	x, y = dec(t, pages[0].Words[2].BoundingBox.BottomLeft)
	assert.Equal(t, []string{"0.1", "0.93"}, []string{x, y})

	assert.Equal(t, 1, pages[1].Index)
	require.Len(t, pages[1].Words, 1)
	assert.Equal(t, "", pages[1].Words[0].Text, "a word without symbols has empty text")
}

func TestNormalizeVisionIsIdempotent(t *testing.T) {
	resp, err := ParseVisionJSON([]byte(twoPageVisionJSON))
	require.NoError(t, err)

	first, err := NormalizeVision(resp)
	require.NoError(t, err)
	second, err := NormalizeVision(resp)
	require.NoError(t, err)

	assert.True(t, models.PagesEqual(first, second))

	reparsed, err := ParseVisionJSON([]byte(twoPageVisionJSON))
	require.NoError(t, err)
	third, err := NormalizeVision(reparsed)
	require.NoError(t, err)

	assert.True(t, models.PagesEqual(first, third))
}

func TestNormalizeVisionErrors(t *testing.T) {
	vertices := func(n int) []*visionpb.NormalizedVertex {
		out := make([]*visionpb.NormalizedVertex, n)
		for i := range out {
			out[i] = &visionpb.NormalizedVertex{X: 0.1, Y: 0.1}
		}
		return out
	}
	withWord := func(word *visionpb.Word) *visionpb.BatchAnnotateImagesResponse {
		return &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{
				FullTextAnnotation: &visionpb.TextAnnotation{
					Pages: []*visionpb.Page{{
						Blocks: []*visionpb.Block{{
							Paragraphs: []*visionpb.Paragraph{{
								Words: []*visionpb.Word{word},
							}},
						}},
					}},
				},
			}},
		}
	}

	tests := []struct {
		name    string
		resp    *visionpb.BatchAnnotateImagesResponse
		details string
	}{
		{name: "nil response", resp: nil, details: "no responses present"},
		{name: "no responses", resp: &visionpb.BatchAnnotateImagesResponse{}, details: "no responses present"},
		{
			name: "missing annotation",
			resp: &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{}},
			},
			details: "no fullTextAnnotation",
		},
		{
			name: "engine error",
			resp: &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{
					Error: &status.Status{Code: 3, Message: "bad image"},
				}},
			},
			details: "bad image",
		},
		{
			name:    "missing bounding box",
			resp:    withWord(&visionpb.Word{}),
			details: "page 0 word 0: missing boundingBox",
		},
		{
			name: "three vertices",
			resp: withWord(&visionpb.Word{
				BoundingBox: &visionpb.BoundingPoly{NormalizedVertices: vertices(3)},
			}),
			details: "expected 4 normalized vertices, got 3",
		},
		{
			name: "pixel vertices only",
			resp: withWord(&visionpb.Word{
				BoundingBox: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{{X: 1}, {X: 2}, {X: 3}, {X: 4}}},
			}),
			details: "got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := NormalizeVision(tt.resp)
			require.Error(t, err)
			assert.Nil(t, pages, "no partial output")
			assert.True(t, errors.Is(err, ErrInvalidResponse))

			var ocrErr *OCRError
			require.True(t, errors.As(err, &ocrErr))
			assert.Contains(t, ocrErr.Details, tt.details)
		})
	}
}

func TestParseVisionJSONMalformed(t *testing.T) {
	for _, data := range []string{"", "   ", "{", `{"responses": 5}`} {
		_, err := ParseVisionJSON([]byte(data))
		assert.ErrorIs(t, err, ErrInvalidResponse, "input %q", data)
	}

	// Unknown fields are tolerated.
	resp, err := ParseVisionJSON([]byte(`{"responses": [{"somethingNew": true}]}`))
	require.NoError(t, err)
	assert.Len(t, resp.GetResponses(), 1)
}

func TestMergeFileResponse(t *testing.T) {
	pageWith := func(text string) *visionpb.AnnotateImageResponse {
		return &visionpb.AnnotateImageResponse{
			FullTextAnnotation: &visionpb.TextAnnotation{
				Text: text,
				Pages: []*visionpb.Page{{
					Confidence: 0.9,
					Blocks: []*visionpb.Block{{
						Paragraphs: []*visionpb.Paragraph{{
							Words: []*visionpb.Word{{
								BoundingBox: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
									{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.1}, {X: 0.2, Y: 0.2}, {X: 0.1, Y: 0.2},
								}},
								Symbols: []*visionpb.Symbol{{Text: text}},
							}},
						}},
					}},
				}},
			},
		}
	}

	fileResp := &visionpb.AnnotateFileResponse{
		Responses: []*visionpb.AnnotateImageResponse{
			pageWith("one"),
			{}, // blank page
			pageWith("three"),
		},
	}

	merged, err := MergeFileResponse(fileResp)
	require.NoError(t, err)

	pages, err := NormalizeVision(merged)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "one", pages[0].Words[0].Text)
	assert.Empty(t, pages[1].Words)
	assert.Equal(t, 2, pages[2].Index)
	assert.Equal(t, "three", pages[2].Words[0].Text)
	assert.InDelta(t, 0.9, visionConfidence(merged), 1e-6)

	_, err = MergeFileResponse(&visionpb.AnnotateFileResponse{})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = MergeFileResponse(&visionpb.AnnotateFileResponse{
		Responses: []*visionpb.AnnotateImageResponse{{Error: &status.Status{Code: 13, Message: "boom"}}},
	})
	assert.ErrorIs(t, err, ErrOCRFailed)
}

func TestMarshalRawRoundTrip(t *testing.T) {
	resp, err := ParseVisionJSON([]byte(twoPageVisionJSON))
	require.NoError(t, err)

	data, err := MarshalRaw(resp)
	require.NoError(t, err)

	reparsed, err := ParseVisionJSON(data)
	require.NoError(t, err)

	want, err := NormalizeVision(resp)
	require.NoError(t, err)
	got, err := NormalizeVision(reparsed)
	require.NoError(t, err)
	assert.True(t, models.PagesEqual(want, got))

	_, err = MarshalRaw(nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestNormalizeDocumentAI(t *testing.T) {
	poly := func(x0, y0, x1, y1 float32) *documentaipb.BoundingPoly {
		return &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
			{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
		}}
	}
	token := func(start, end int64, p *documentaipb.BoundingPoly) *documentaipb.Document_Page_Token {
		return &documentaipb.Document_Page_Token{
			Layout: &documentaipb.Document_Page_Layout{
				TextAnchor: &documentaipb.Document_TextAnchor{
					TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
				},
				BoundingPoly: p,
			},
		}
	}

	doc := &documentaipb.Document{
		Text: "Größe 12\nEnde\n",
		Pages: []*documentaipb.Document_Page{
			{Tokens: []*documentaipb.Document_Page_Token{
				token(0, 6, poly(0.1, 0.1, 0.2, 0.12)),
				token(6, 9, poly(0.25, 0.1, 0.3, 0.12)),
			}},
			{Tokens: []*documentaipb.Document_Page_Token{
				token(9, 14, poly(0.1, 0.5, 0.2, 0.52)),
			}},
		},
	}

	pages, err := NormalizeDocumentAI(doc)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "Größe", pages[0].Words[0].Text, "indices count characters")
	assert.Equal(t, "12", pages[0].Words[1].Text)
	assert.Equal(t, 1, pages[1].Index)
	assert.Equal(t, "Ende", pages[1].Words[0].Text)

	x, y := dec(t, pages[1].Words[0].BoundingBox.BottomLeft)
	assert.Equal(t, []string{"0.1", "0.52"}, []string{x, y})
}

func TestNormalizeDocumentAIErrors(t *testing.T) {
	_, err := NormalizeDocumentAI(nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NormalizeDocumentAI(&documentaipb.Document{
		Pages: []*documentaipb.Document_Page{{Tokens: []*documentaipb.Document_Page_Token{{}}}},
	})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NormalizeDocumentAI(&documentaipb.Document{
		Text: "abc",
		Pages: []*documentaipb.Document_Page{{Tokens: []*documentaipb.Document_Page_Token{{
			Layout: &documentaipb.Document_Page_Layout{
				BoundingPoly: &documentaipb.BoundingPoly{NormalizedVertices: make([]*documentaipb.NormalizedVertex, 4)},
				TextAnchor: &documentaipb.Document_TextAnchor{
					TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 1, EndIndex: 10}},
				},
			},
		}}}},
	})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseDocumentAIJSON(t *testing.T) {
	bare := `{"text": "Hi", "pages": [{"tokens": [{"layout": {
	  "textAnchor": {"textSegments": [{"endIndex": "2"}]},
	  "boundingPoly": {"normalizedVertices": [{"x": 0.1, "y": 0.1}, {"x": 0.2, "y": 0.1}, {"x": 0.2, "y": 0.2}, {"x": 0.1, "y": 0.2}]}
	}}]}]}`
	wrapped := `{"document": ` + bare + `}`

	for _, data := range []string{bare, wrapped} {
		doc, err := ParseDocumentAIJSON([]byte(data))
		require.NoError(t, err)

		pages, err := NormalizeDocumentAI(doc)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, "Hi", pages[0].Words[0].Text)
	}

	_, err := ParseDocumentAIJSON([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCheckPageCount(t *testing.T) {
	fivePages := make([]*visionpb.AnnotateImageResponse, MaxPagesSync)
	for i := range fivePages {
		fivePages[i] = &visionpb.AnnotateImageResponse{}
	}

	tests := []struct {
		name    string
		resp    *visionpb.AnnotateFileResponse
		wantErr bool
	}{
		{"within limit", &visionpb.AnnotateFileResponse{TotalPages: 5, Responses: fivePages}, false},
		{"short document", &visionpb.AnnotateFileResponse{TotalPages: 2, Responses: fivePages[:2]}, false},
		{"annotation cut at five pages", &visionpb.AnnotateFileResponse{TotalPages: 12, Responses: fivePages}, true},
		{"total pages missing", &visionpb.AnnotateFileResponse{Responses: append(fivePages, &visionpb.AnnotateImageResponse{})}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPageCount(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrTooManyPages)
				return
			}
			assert.NoError(t, err)
		})
	}
}
