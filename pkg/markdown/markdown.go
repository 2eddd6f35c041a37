// Package markdown extracts plain text, mentions and attachment references from comment text.
package markdown

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	// A mention is [display name|user id]. The name may hold one level of nested
	// brackets, pipes and parens, but the character before the id separator may not
	// be a bracket.
	mentionPattern = regexp.MustCompile(`\[((?:[^\[\]\n]|\[[^\[\]\n]*\])*?[^\[\]\n])\|(\d+)\]`)

	attachmentPattern = regexp.MustCompile(
		`!?\[[^\]]*\]\((https?://[^\s)]+)\s+"attachment_id:(\d+)\s+entityType:(image|file|video|zip)"\)`,
	)

	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Mention is a reference to a user inside comment text.
type Mention struct {
	Name   string
	UserID int64
}

// ExtractMentions returns the mentions in text order.
func ExtractMentions(input string) []Mention {
	matches := mentionPattern.FindAllStringSubmatch(input, -1)
	mentions := make([]Mention, 0, len(matches))

	for _, match := range matches {
		id, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}

		mentions = append(mentions, Mention{Name: match[1], UserID: id})
	}

	return mentions
}

// MentionedUserIDs returns the distinct ids of mentioned users in text order.
func MentionedUserIDs(input string) []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0)

	for _, mention := range ExtractMentions(input) {
		if !seen[mention.UserID] {
			seen[mention.UserID] = true
			ids = append(ids, mention.UserID)
		}
	}

	return ids
}

// ReplaceMentions renders mention tokens as their display names.
func ReplaceMentions(input string) string {
	return mentionPattern.ReplaceAllString(input, "$1")
}

// ExtractAttachmentIDs returns the ids of http(s) attachment links in text order.
func ExtractAttachmentIDs(input string) []int64 {
	matches := attachmentPattern.FindAllStringSubmatch(input, -1)
	ids := make([]int64, 0, len(matches))

	for _, match := range matches {
		id, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

// Renderer turns rich text into plain text using goldmark's parser.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New()}
}

// Clear returns the text without markdown syntax. Mentions become display names and
// blocks are separated by line breaks.
func (r *Renderer) Clear(input string) string {
	source := []byte(ReplaceMentions(input))
	doc := r.md.Parser().Parse(text.NewReader(source))

	var out strings.Builder

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
				out.WriteString("\n")
			}

			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Text:
			out.Write(n.Segment.Value(source))

			if n.HardLineBreak() || n.SoftLineBreak() {
				out.WriteString("\n")
			}
		case *ast.String:
			out.Write(n.Value)
		case *ast.AutoLink:
			out.Write(n.Label(source))

			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := range lines.Len() {
				segment := lines.At(i)
				out.Write(segment.Value(source))
			}

			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankLines.ReplaceAllString(out.String(), "\n\n"))
}

// Clear renders with a default renderer.
func Clear(input string) string {
	return NewRenderer().Clear(input)
}
