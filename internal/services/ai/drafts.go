package ai

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/vaultflow/internal/models"
)

const (
	draftOpen   = "=== DRAFT:"
	draftMarker = "==="
	draftEnd    = "=== END DRAFT ==="
)

// DraftBlock is one draft parsed out of a batch answer
type DraftBlock struct {
	// Name is the filename the model put in the opening marker
	Name string
	// Synthetic is set when Name was generated because the marker had none
	Synthetic bool
	// Doc holds the block's header and body
	Doc *models.Document
}

// OriginalFile returns the block's original_file header, if any
func (b DraftBlock) OriginalFile() string {
	return b.Doc.OriginalFile()
}

// ParseDraftBlocks extracts draft blocks from a batch answer. Parsing is
// lenient: a block without an end marker runs to the next block or the end of
// the text, an opening marker without its closing === still yields the name
// and header, and a block whose opening marker carries no name gets draft_<n>.
// Text before the first block is ignored.
func ParseDraftBlocks(output string) []DraftBlock {
	output = strings.ReplaceAll(output, "\r\n", "\n")
	segments := strings.Split(output, draftOpen)
	if len(segments) < 2 {
		return nil
	}

	blocks := make([]DraftBlock, 0, len(segments)-1)
	for i, seg := range segments[1:] {
		if end := strings.Index(seg, draftEnd); end != -1 {
			seg = seg[:end]
		}

		// the opening marker line is "=== DRAFT: <name> ===", and the whole
		// line is the name when the closing === is missing
		line, rest, _ := strings.Cut(seg, "\n")
		name, trailing, closed := strings.Cut(line, draftMarker)
		if !closed {
			trailing = ""
		}
		name = strings.TrimSpace(name)
		content := trailing + "\n" + rest

		block := DraftBlock{Name: name}
		if name == "" {
			block.Name = fmt.Sprintf("draft_%d", i)
			block.Synthetic = true
		}
		block.Doc = models.ParseDocument([]byte(strings.TrimSpace(content) + "\n"))
		blocks = append(blocks, block)
	}
	return blocks
}

// SafeName reduces a model-supplied name to filename-safe characters and drops
// a trailing document extension
func SafeName(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".md")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "draft"
	}
	return b.String()
}
