// Package extract is the dependency-free fallback converter. It reads the
// primary document part straight out of the DOCX container and rebuilds a
// styled HTML approximation, trading fidelity for availability when no
// external converter is reachable.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

// ErrUnreadable means the input is not a DOCX container at all. Valid but
// empty documents are not an error; they extract to an empty body.
var ErrUnreadable = errors.New("input is not a readable docx container")

// ErrOversized means the document text expanded past the cap for the
// container's compressed size.
var ErrOversized = errors.New("document text exceeds the extraction limit")

const (
	textExpansionFactor = 100
	textLimitFloor      = 1 << 20
	textLimitCeiling    = 64 << 20
)

// textLimit caps collected text relative to the compressed container size,
// clamped between a fixed floor and ceiling. The walk stops with
// ErrOversized once a document part expands past it.
func textLimit(inputSize int) int {
	limit := inputSize * textExpansionFactor
	if limit < textLimitFloor {
		return textLimitFloor
	}
	if limit > textLimitCeiling {
		return textLimitCeiling
	}
	return limit
}

// Output carries the rendered document plus the counters the pipeline uses
// for quality logging.
type Output struct {
	HTML       string
	Paragraphs int
	TextChars  int
	// Degraded is set when the heuristic renderer failed and the minimal
	// paragraph-only rendering was used instead.
	Degraded bool
}

type paragraph struct {
	text     string
	style    string
	listItem bool
}

// ToHTML converts a DOCX byte buffer to a self-contained HTML document.
// It only fails for inputs the container parser cannot read; everything
// downstream degrades instead of failing.
func ToHTML(ctx context.Context, input []byte) (*Output, error) {
	paragraphs, err := parseDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	out := &Output{Paragraphs: len(paragraphs)}
	for _, p := range paragraphs {
		out.TextChars += len(p.text)
	}

	html, renderErr := renderStyled(paragraphs)
	if renderErr != nil {
		out.Degraded = true
		html = renderPlain(paragraphs)
	}
	out.HTML = html

	return out, nil
}

// parseDocument opens the container and walks the primary document part,
// grouping text runs by paragraph and capturing style and numbering marks.
func parseDocument(ctx context.Context, input []byte) ([]paragraph, error) {
	reader, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var part *zip.File
	for _, f := range reader.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrUnreadable, documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rc.Close()

	return walkBody(ctx, rc, textLimit(len(input)))
}

// walkBody streams the WordprocessingML token-by-token so arbitrarily large
// documents never need a parsed tree in memory. Collected text is bounded by
// limit; a document part that expands past it is rejected.
func walkBody(ctx context.Context, r io.Reader, limit int) ([]paragraph, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []paragraph
		current    *paragraph
		text       strings.Builder
		inText     bool
		collected  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current = &paragraph{}
				text.Reset()
			case "t":
				inText = current != nil
			case "tab", "br":
				if current != nil {
					collected++
					if collected > limit {
						return nil, fmt.Errorf("%w: past %d bytes", ErrOversized, limit)
					}
					text.WriteByte(' ')
				}
			case "pStyle":
				if current != nil {
					current.style = attrVal(t, "val")
				}
			case "numPr":
				if current != nil {
					current.listItem = true
				}
			}
		case xml.CharData:
			if inText {
				collected += len(t)
				if collected > limit {
					return nil, fmt.Errorf("%w: past %d bytes", ErrOversized, limit)
				}
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if current != nil {
					current.text = collapseWhitespace(text.String())
					paragraphs = append(paragraphs, *current)
					current = nil
				}
			}
		}
	}

	return paragraphs, nil
}

func attrVal(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
