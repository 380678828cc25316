package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Tanbe3170/my-voice-diary/internal/diary"
)

const (
	formatterModel     = "claude-sonnet-4-20250514"
	formatterMaxTokens = 2000
	anthropicVersion   = "2023-06-01"
)

// ErrBadFormat means the model's reply contained no parseable entry.
var ErrBadFormat = errors.New("formatter: no valid entry in model response")

// Formatter turns a spoken transcript into a structured diary entry
// using the Anthropic Messages API.
type Formatter struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewFormatter(apiKey string) *Formatter {
	return &Formatter{
		APIKey:     apiKey,
		BaseURL:    "https://api.anthropic.com",
		HTTPClient: defaultHTTPClient,
	}
}

const formatterPrompt = `あなたは日記執筆のアシスタントです。以下の音声入力テキスト（口語）を、文語の日記形式に整形してください。

【音声入力テキスト】
%s

【出力形式】
以下のJSON形式で出力してください。JSONの前後に説明文は不要です。

` + "```json" + `
{
  "date": "%s",
  "title": "その日の出来事を要約した魅力的なタイトル（15文字以内）",
  "summary": "3行サマリー（1行30文字程度、改行で区切る）",
  "body": "詳細な日記本文（段落分けあり、文語体で整った文章）",
  "tags": ["関連するハッシュタグ", "5個程度"],
  "image_prompt": "この日記から1枚の画像を生成するための英語プロンプト（DALL-E用、詳細に）"
}
` + "```" + `

【整形のルール】
1. 口語（「〜でした」「〜なんだけど」）→ 文語（「〜だった」「〜だが」）
2. タイトルは読者の興味を引く工夫をする
3. サマリーは3行で要点をまとめる
4. 本文は適度に段落分けし、読みやすくする
5. ハッシュタグはInstagram投稿を想定（#日記 #今日の出来事 など）
6. 画像プロンプトは情景が浮かぶような具体的な英語で記述

それでは、音声入力テキストを日記に整形してください。`

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)(\{.*\})`)
)

// Format sends rawText to the model and returns the validated entry.
// now supplies the date woven into the prompt.
func (f *Formatter) Format(ctx context.Context, rawText string, now time.Time) (*diary.Entry, error) {
	prompt := fmt.Sprintf(formatterPrompt, rawText, japaneseDate(now))
	body := map[string]any{
		"model":      formatterModel,
		"max_tokens": formatterMaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         f.APIKey,
		"anthropic-version": anthropicVersion,
	}
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := postJSON(ctx, f.HTTPClient, f.BaseURL+"/v1/messages", headers, body, &resp); err != nil {
		return nil, fmt.Errorf("formatter: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, ErrBadFormat
	}
	entry, err := extractEntry(resp.Content[0].Text)
	if err != nil {
		return nil, err
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("formatter: %w", err)
	}
	return entry, nil
}

// extractEntry pulls the JSON object out of the model's reply, preferring
// a fenced block over a bare object.
func extractEntry(text string) (*diary.Entry, error) {
	m := fencedJSONRe.FindStringSubmatch(text)
	if m == nil {
		m = bareJSONRe.FindStringSubmatch(text)
	}
	if m == nil {
		return nil, ErrBadFormat
	}
	var entry diary.Entry
	if err := json.Unmarshal([]byte(m[1]), &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return &entry, nil
}

// japaneseDate renders a date like 2026年2月16日.
func japaneseDate(t time.Time) string {
	return fmt.Sprintf("%d年%d月%d日", t.Year(), int(t.Month()), t.Day())
}
