package layout

import (
	"regexp"
	"strings"
)

var (
	codeFence   = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)\n(.*?)```")
	paraSplit   = regexp.MustCompile(`\n{2,}`)
	bulletItem  = regexp.MustCompile(`^[-*•]\s+`)
	numberItem  = regexp.MustCompile(`^\d+[.)]\s+`)
	headingLine = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)
	commandLine = regexp.MustCompile(`(?i)^(?:\$|npm\s|pnpm\s|yarn\s|uv\s|python\s|pip\s|git\s|npx\s|node\s|curl\s|bash\s|sh\s|export\s|set\s)`)
)

// Paragraphs splits sanitized text into styled blocks. Fenced code is kept
// verbatim; other text is split on blank lines and each chunk classified as
// heading, list, shell commands or plain paragraph.
func Paragraphs(mark ArticleMark, text string) []TextBlock {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	var out []TextBlock
	cursor := 0
	for _, m := range codeFence.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, plainBlocks(mark, text[cursor:m[0]])...)
		code := strings.Trim(text[m[4]:m[5]], "\n")
		if strings.TrimSpace(code) != "" {
			out = append(out, TextBlock{Article: mark, Style: StyleCode, Text: code, Language: text[m[2]:m[3]]})
		}
		cursor = m[1]
	}
	out = append(out, plainBlocks(mark, text[cursor:])...)
	if len(out) == 0 {
		out = append(out, TextBlock{Article: mark, Style: StyleParagraph, Text: text})
	}
	return out
}

func plainBlocks(mark ArticleMark, segment string) []TextBlock {
	var out []TextBlock
	for _, chunk := range paraSplit.Split(segment, -1) {
		var lines []string
		for _, l := range strings.Split(chunk, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			continue
		}
		if len(lines) == 1 {
			if m := headingLine.FindStringSubmatch(lines[0]); m != nil && strings.TrimSpace(m[2]) != "" {
				out = append(out, TextBlock{Article: mark, Style: StyleHeading, Text: strings.TrimSpace(m[2]), Level: len(m[1])})
				continue
			}
		}
		if countMatching(commandLine, lines) >= 2 {
			out = append(out, TextBlock{Article: mark, Style: StyleCode, Text: strings.Join(lines, "\n")})
			continue
		}
		if countMatching(bulletItem, lines) == len(lines) {
			out = append(out, TextBlock{Article: mark, Style: StyleBulletList, Items: trimItems(bulletItem, lines)})
			continue
		}
		if countMatching(numberItem, lines) == len(lines) {
			out = append(out, TextBlock{Article: mark, Style: StyleNumberedList, Items: trimItems(numberItem, lines)})
			continue
		}
		out = append(out, TextBlock{Article: mark, Style: StyleParagraph, Text: strings.Join(lines, " ")})
	}
	return out
}

func countMatching(re *regexp.Regexp, lines []string) int {
	n := 0
	for _, l := range lines {
		if re.MatchString(l) {
			n++
		}
	}
	return n
}

func trimItems(re *regexp.Regexp, lines []string) []string {
	items := make([]string, len(lines))
	for i, l := range lines {
		items[i] = strings.TrimSpace(re.ReplaceAllString(l, ""))
	}
	return items
}
