package slack

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"grouplog-digest/internal/domain"
)

const (
	sectionLimit = 2900
	headerLimit  = 150
	maxSamples   = 3
	// maxBlocks — предел chat.postMessage; больше Slack отвечает invalid_blocks.
	maxBlocks = 50
)

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Block — минимальное подмножество Block Kit, которое нужно для сводок.
type Block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

func mrkdwn(text string) textObject { return textObject{Type: "mrkdwn", Text: text} }

// BuildBlocks рендерит сводку: заголовок с именем группы, контекст (файлы, модель, период)
// и по секции на категорию. Текст не в формате "Unique Issues" выводится как есть.
func BuildBlocks(a domain.SummaryArtifact) []Block {
	blocks := []Block{
		{Type: "header", Text: &textObject{Type: "plain_text", Text: clip(a.Group.DisplayName, headerLimit), Emoji: true}},
		{Type: "context", Elements: contextElements(a)},
		{Type: "divider"},
	}

	items := domain.ParseIssues(a.Text)
	if len(items) == 0 {
		parts := splitRunes(slackify(a.Text), sectionLimit)
		for i, part := range parts {
			if len(blocks) == maxBlocks-1 && i < len(parts)-1 {
				blocks = append(blocks, moreBlock(fmt.Sprintf("_…text truncated, %d more sections_", len(parts)-i)))
				break
			}
			blocks = append(blocks, Block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: part}})
		}
		return blocks
	}

	domain.SortIssues(items)
	for idx, it := range items {
		var group []Block
		lastSeen := strings.TrimSpace(it.LastSeen)
		if t, ok := domain.ParseIssueTime(lastSeen); ok {
			lastSeen = t.Format(domain.LastSeenLayout)
		} else if lastSeen == "" {
			lastSeen = "Unknown"
		}
		group = append(group, Block{Type: "section", Fields: []textObject{
			mrkdwn(fmt.Sprintf("*%s Category %d:*\n%s", severityEmoji(it.Occurrences), idx+1, it.Category)),
			mrkdwn(fmt.Sprintf("*Occurrences:*\n%d\n*Last:*\n%s", it.Occurrences, lastSeen)),
		}})
		if len(it.Samples) > 0 {
			samples := it.Samples
			if len(samples) > maxSamples {
				samples = samples[:maxSamples]
			}
			text := "*Sample Messages:*\n• " + strings.Join(samples, "\n• ")
			group = append(group, Block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: clip(text, sectionLimit)}})
		}
		if idx < len(items)-1 {
			group = append(group, Block{Type: "divider"})
		}
		// Последнему элементу место под блок "ещё N" не нужно.
		limit := maxBlocks - 1
		if idx == len(items)-1 {
			limit = maxBlocks
		}
		if len(blocks)+len(group) > limit {
			blocks = append(blocks, moreBlock(fmt.Sprintf("_…and %d more categories_", len(items)-idx)))
			break
		}
		blocks = append(blocks, group...)
	}
	return blocks
}

func moreBlock(text string) Block {
	return Block{Type: "context", Elements: []textObject{mrkdwn(text)}}
}

func contextElements(a domain.SummaryArtifact) []textObject {
	elements := []textObject{}
	if sources := a.Sources(); len(sources) > 0 {
		elements = append(elements, mrkdwn("*Files:* `"+strings.Join(sources, ", ")+"`"))
	}
	if a.Model != "" {
		elements = append(elements, mrkdwn("*Model:* `"+a.Model+"`"))
	}
	if from, to, ok := a.TimeRange(); ok {
		period := from.Format(domain.DateLayout)
		if !to.Equal(from) {
			period += " to " + to.Format(domain.DateLayout)
		}
		elements = append(elements, mrkdwn("*Covers:* "+period))
	}
	if len(elements) == 0 {
		elements = append(elements, mrkdwn("*Generated:* "+a.GeneratedAt.Format("2006-01-02 15:04 MST")))
	}
	return elements
}

// FallbackText — текст уведомления для клиентов без поддержки блоков.
func FallbackText(a domain.SummaryArtifact) string {
	items := domain.ParseIssues(a.Text)
	if len(items) > 0 {
		return a.Group.DisplayName + ": " + strconv.Itoa(len(items)) + " issue categories"
	}
	return clip(a.Group.DisplayName+": "+strings.TrimSpace(a.Text), 300)
}

func severityEmoji(occurrences int) string {
	switch {
	case occurrences >= 10:
		return ":red_circle:"
	case occurrences >= 3:
		return ":large_orange_circle:"
	default:
		return ":large_blue_circle:"
	}
}

var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletRe = regexp.MustCompile(`(?m)^(\s*)-\s+`)
	blanksRe = regexp.MustCompile(`\n{3,}`)
	crlfNorm = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// slackify переводит markdown-подобный текст в mrkdwn.
func slackify(text string) string {
	s := crlfNorm.Replace(text)
	s = boldRe.ReplaceAllString(s, "*$1*")
	s = bulletRe.ReplaceAllString(s, "$1• ")
	s = blanksRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func splitRunes(text string, limit int) []string {
	var parts []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			parts = append(parts, text)
			break
		}
		cut := 0
		for i := 0; i < limit; i++ {
			_, size := utf8.DecodeRuneInString(text[cut:])
			cut += size
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return parts
}

func clip(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return splitRunes(text, limit-1)[0] + "…"
}
