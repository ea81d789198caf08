// Package provider 封装对外部生成供应商的调用：提示词构建、响应清洗、成本估算与审计
package provider

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"theme-gen-ai-api/internal/domain/entity"
)

// ErrInvalidParams 参数不在枚举范围内，调用前即被拒绝
var ErrInvalidParams = errors.New("invalid generation params")

// contextLimit 附加上下文最大字符数
const contextLimit = 500

// Styles 支持的语气风格
var Styles = []string{"casual", "formal", "funny", "heartfelt", "inspirational", "romantic"}

// Lengths 支持的长度档位及其字数上限
var Lengths = map[string]int{
	"short":  30,
	"medium": 80,
	"long":   160,
}

// LengthNames 长度档位，按字数升序
var LengthNames = []string{"short", "medium", "long"}

var styleHints = map[string]string{
	"casual":        "relaxed and friendly, like a note to a close friend",
	"formal":        "polite and professional",
	"funny":         "light-hearted and playful, with a gentle joke",
	"heartfelt":     "warm, sincere and personal",
	"inspirational": "uplifting and encouraging",
	"romantic":      "tender and affectionate",
}

const textSystemPrompt = "You write short themed greeting messages. " +
	"Reply with the message text only: no title, no label, no quotes, no explanation."

const imageInstruction = "Analyze this image for a greeting-message app. " +
	"Respond with a single JSON object and nothing else, using exactly these keys: " +
	`{"description": string, "suggested_themes": [string], "mood": string, "confidence": number between 0 and 1}.`

// ValidateParams 校验生成参数
func ValidateParams(kind entity.GenerationKind, p entity.GenerationParams) error {
	switch kind {
	case entity.GenerationKindText:
		if strings.TrimSpace(p.Theme) == "" {
			return fmt.Errorf("%w: theme is required", ErrInvalidParams)
		}
		if _, ok := styleHints[normalize(p.Style)]; !ok {
			return fmt.Errorf("%w: unsupported style %q", ErrInvalidParams, p.Style)
		}
		if _, ok := Lengths[normalize(p.Length)]; !ok {
			return fmt.Errorf("%w: unsupported length %q", ErrInvalidParams, p.Length)
		}
		return nil
	case entity.GenerationKindImage:
		ref := strings.TrimSpace(p.ImageURL)
		if ref == "" {
			return fmt.Errorf("%w: image reference is required", ErrInvalidParams)
		}
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") && !strings.HasPrefix(ref, "data:image/") {
			return fmt.Errorf("%w: image reference must be an http(s) URL or data URI", ErrInvalidParams)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidParams, kind)
	}
}

// BuildTextMessages 构建文本生成提示词，相同参数总是得到相同的消息
func BuildTextMessages(p entity.GenerationParams) []*schema.Message {
	style := normalize(p.Style)
	length := normalize(p.Length)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s greeting message for the theme %q.\n", style, strings.TrimSpace(p.Theme))
	fmt.Fprintf(&sb, "Tone: %s.\n", styleHints[style])
	fmt.Fprintf(&sb, "Length: at most %d words.\n", Lengths[length])
	if c := truncateRunes(strings.TrimSpace(p.Context), contextLimit); c != "" {
		fmt.Fprintf(&sb, "Additional context: %s\n", c)
	}

	return []*schema.Message{
		schema.SystemMessage(textSystemPrompt),
		schema.UserMessage(sb.String()),
	}
}

// BuildImageMessages 构建多模态图片分析消息
func BuildImageMessages(p entity.GenerationParams) []*schema.Message {
	return []*schema.Message{
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: imageInstruction},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    strings.TrimSpace(p.ImageURL),
						Detail: schema.ImageURLDetailAuto,
					},
				},
			},
		},
	}
}

// promptSummary 审计日志中的提示词摘要，不包含图片数据
func promptSummary(req *entity.GenerationRequest) string {
	if req.Kind == entity.GenerationKindImage {
		ref := strings.TrimSpace(req.Params.ImageURL)
		if strings.HasPrefix(ref, "data:") {
			if i := strings.Index(ref, ","); i > 0 {
				ref = ref[:i] + ",…"
			}
		}
		return "image_analysis: " + ref
	}
	msgs := BuildTextMessages(req.Params)
	return msgs[len(msgs)-1].Content
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
