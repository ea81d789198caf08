package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"theme-gen-ai-api/internal/domain/entity"
)

var (
	leadingLabelRe = regexp.MustCompile(`(?i)^\s*(?:here(?:'s| is)[^:\n]{0,80}:|caption\s*:|message\s*:|template\s*:|text\s*:)\s*`)
	trailingNoteRe = regexp.MustCompile(`(?i)^\s*(?:note\s*:|explanation\s*:|this message\b|i hope\b|feel free\b)`)
	paragraphSepRe = regexp.MustCompile(`\n\s*\n`)
)

// quotePairs 成对包裹引号
var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
	{"‘", "’"},
	{"«", "»"},
	{"„", "“"},
	{"「", "」"},
	{"『", "』"},
}

// CleanText 去除模型输出中的标签前缀、结尾说明段落与包裹引号
func CleanText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	s = leadingLabelRe.ReplaceAllString(s, "")

	paragraphs := paragraphSepRe.Split(s, -1)
	for len(paragraphs) > 1 && trailingNoteRe.MatchString(paragraphs[len(paragraphs)-1]) {
		paragraphs = paragraphs[:len(paragraphs)-1]
	}
	s = strings.TrimSpace(strings.Join(paragraphs, "\n\n"))

	// 引号可能嵌套一层，例如 “"..."”
	for i := 0; i < 2; i++ {
		unwrapped := unquote(s)
		if unwrapped == s {
			break
		}
		s = unwrapped
	}
	return s
}

func unquote(s string) string {
	for _, q := range quotePairs {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			// 内部仍含同种引号时视为引用片段而非整体包裹
			if q[0] == q[1] && strings.Contains(inner, q[0]) {
				continue
			}
			return strings.TrimSpace(inner)
		}
	}
	return s
}

// ParseImageAnalysis 从模型输出中容错解析图片分析 JSON
func ParseImageAnalysis(raw string) (*entity.ImageAnalysis, error) {
	payload := ExtractJSONObject(raw)
	if payload == "" {
		return nil, errors.New("empty image analysis response")
	}

	var out entity.ImageAnalysis
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("failed to parse image analysis: %w", err)
	}
	out.Description = strings.TrimSpace(out.Description)
	if out.Description == "" {
		return nil, errors.New("image analysis missing description")
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	themes := out.SuggestedThemes[:0]
	for _, t := range out.SuggestedThemes {
		if t = strings.TrimSpace(t); t != "" {
			themes = append(themes, t)
		}
	}
	if themes == nil {
		themes = []string{}
	}
	out.SuggestedThemes = themes
	return &out, nil
}

// ExtractJSONObject 尝试从模型输出中截取第一个完整 JSON 对象或数组。
// 模型可能会在 JSON 前后夹杂多余文本或代码块标记。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	start := -1
	end := -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err == nil {
		if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
			return raw
		}
	}

	dec = json.NewDecoder(strings.NewReader(raw))
	for {
		_, e := dec.Token()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return strings.TrimSpace(s)
		}
	}
	return raw
}
