// Package diary holds the domain model: formatted entries, their
// markdown rendering, repository paths, and the caption text posted to
// social platforms.
package diary

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

// Limits on a formatted entry.
const (
	MaxTitle       = 50
	MaxSummary     = 500
	MaxBody        = 10000
	MaxTags        = 10
	MaxTagLen      = 30
	MaxImagePrompt = 500

	// MaxRawText bounds the transcript accepted for formatting.
	MaxRawText = 10000
)

// Platform caption limits. Instagram and Threads count runes; Bluesky
// counts grapheme clusters.
const (
	MaxInstagramCaption = 2200
	MaxThreadsText      = 500
	MaxBlueskyGraphemes = 300
)

// Entry is a formatted diary entry, as produced by the formatter.
type Entry struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	ImagePrompt string   `json:"image_prompt"`
}

// Validate checks the entry against the schema limits. All problems are
// reported at once.
func (e *Entry) Validate() error {
	var problems []string
	if e.Title == "" {
		problems = append(problems, "title is required")
	} else if count(e.Title) > MaxTitle {
		problems = append(problems, fmt.Sprintf("title exceeds %d characters", MaxTitle))
	}
	if e.Summary == "" {
		problems = append(problems, "summary is required")
	} else if count(e.Summary) > MaxSummary {
		problems = append(problems, fmt.Sprintf("summary exceeds %d characters", MaxSummary))
	}
	if e.Body == "" {
		problems = append(problems, "body is required")
	} else if count(e.Body) > MaxBody {
		problems = append(problems, fmt.Sprintf("body exceeds %d characters", MaxBody))
	}
	if len(e.Tags) > MaxTags {
		problems = append(problems, fmt.Sprintf("more than %d tags", MaxTags))
	}
	for _, tag := range e.Tags {
		if tag == "" || count(tag) > MaxTagLen {
			problems = append(problems, fmt.Sprintf("tag %q invalid (1-%d characters)", tag, MaxTagLen))
			break
		}
	}
	if e.ImagePrompt == "" {
		problems = append(problems, "image_prompt is required")
	} else if count(e.ImagePrompt) > MaxImagePrompt {
		problems = append(problems, fmt.Sprintf("image_prompt exceeds %d characters", MaxImagePrompt))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid entry: %s", strings.Join(problems, "; "))
	}
	return nil
}

func count(s string) int { return len([]rune(s)) }

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether date is a real calendar date in YYYY-MM-DD
// form. Shape alone is not enough; 2026-02-30 is rejected.
func ValidDate(date string) bool {
	if !datePattern.MatchString(date) {
		return false
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	return parsed.Format("2006-01-02") == date
}

// EntryPath is the repository path of an entry, e.g.
// diaries/2026/02/2026-02-16.md.
func EntryPath(date string) string {
	return fmt.Sprintf("diaries/%s/%s/%s.md", date[:4], date[5:7], date)
}

// ImagePath is the repository path of an entry's generated image.
func ImagePath(date string) string {
	return fmt.Sprintf("docs/images/%s.png", date)
}

// RawImageURL is the public URL the image is served from after push.
func RawImageURL(owner, repo, date string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/%s", owner, repo, ImagePath(date))
}

// Hashtags normalizes tags to hashtag form, leaving tags that already
// start with # alone.
func Hashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.HasPrefix(tag, "#") {
			out = append(out, tag)
		} else {
			out = append(out, "#"+tag)
		}
	}
	return out
}

var yamlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// escapeYAML makes a string safe inside double quotes in front matter.
func escapeYAML(s string) string { return yamlEscaper.Replace(s) }

// Render produces the markdown document stored in the repository. Tag
// values are always quoted so a leading # is not read as a YAML comment.
func Render(e *Entry, date string) string {
	hashtags := Hashtags(e.Tags)
	quoted := make([]string, len(hashtags))
	for i, tag := range hashtags {
		quoted[i] = `"` + escapeYAML(tag) + `"`
	}
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntitle: \"%s\"\ndate: %s\ntags: [%s]\nimage_prompt: \"%s\"\n---\n\n",
		escapeYAML(e.Title), date, strings.Join(quoted, ", "), escapeYAML(e.ImagePrompt))
	fmt.Fprintf(&b, "# %s\n\n", e.Title)
	fmt.Fprintf(&b, "## 📅 %s\n\n", date)
	fmt.Fprintf(&b, "### 📖 サマリー\n\n%s\n\n---\n\n", e.Summary)
	fmt.Fprintf(&b, "%s\n\n---\n\n", e.Body)
	fmt.Fprintf(&b, "**Tags:** %s\n", strings.Join(hashtags, " "))
	return b.String()
}

// CommitMessage is the message used when pushing an entry.
func CommitMessage(date, title string) string {
	return fmt.Sprintf("diary: %s - %s", date, title)
}

// ImageCommitMessage is the message used when pushing a generated image.
func ImageCommitMessage(date string) string {
	return fmt.Sprintf("image: %s - AI生成画像", date)
}

var (
	frontMatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---`)
	titleRe       = regexp.MustCompile(`title:\s*"((?:[^"\\]|\\.)*)"`)
	promptRe      = regexp.MustCompile(`image_prompt:\s*"((?:[^"\\]|\\.)*)"`)
	tagsRe        = regexp.MustCompile(`tags:\s*\[([^\]]*)\]`)
	summaryRe     = regexp.MustCompile(`###[^\n]*サマリー\s*\n([\s\S]*?)(?:\n---|\n###|\n$)`)
)

// Document is what the posting handlers recover from a stored entry.
type Document struct {
	Title       string
	Summary     string
	Tags        []string
	ImagePrompt string
}

// ParseDocument extracts title, summary and tags from a stored markdown
// entry. Missing pieces come back empty; posting still works without
// them.
func ParseDocument(content string) Document {
	var doc Document
	if fm := frontMatterRe.FindStringSubmatch(content); fm != nil {
		if m := titleRe.FindStringSubmatch(fm[1]); m != nil {
			doc.Title = strings.ReplaceAll(m[1], `\"`, `"`)
		}
		if m := promptRe.FindStringSubmatch(fm[1]); m != nil {
			doc.ImagePrompt = strings.ReplaceAll(m[1], `\"`, `"`)
		}
		if m := tagsRe.FindStringSubmatch(fm[1]); m != nil {
			for _, raw := range strings.Split(m[1], ",") {
				tag := strings.Trim(strings.TrimSpace(raw), `"`)
				if tag != "" {
					doc.Tags = append(doc.Tags, tag)
				}
			}
		}
	}
	if m := summaryRe.FindStringSubmatch(content); m != nil {
		doc.Summary = strings.TrimSpace(m[1])
	}
	return doc
}

// DefaultHashtags are always appended to generated Instagram captions.
const DefaultHashtags = "#日記 #VoiceDiary #AI日記"

// Caption builds the text for a post. A non-empty custom text wins
// unchanged; otherwise title, summary and hashtags are stitched
// together, with the fixed hashtag suffix when withDefaults is set.
func Caption(custom string, doc Document, withDefaults bool) string {
	if custom != "" {
		return custom
	}
	var parts []string
	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if doc.Summary != "" {
		parts = append(parts, doc.Summary)
	}
	if len(doc.Tags) > 0 {
		parts = append(parts, strings.Join(Hashtags(doc.Tags), " "))
	}
	text := strings.Join(parts, "\n\n")
	if withDefaults {
		if text != "" {
			text += "\n\n"
		}
		text += DefaultHashtags
	}
	return text
}

// TruncateRunes caps s at max runes, replacing the tail with "..." when
// it overflows.
func TruncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// Graphemes counts user-perceived characters, the unit Bluesky limits
// post length in.
func Graphemes(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// TruncateGraphemes caps s at max grapheme clusters, replacing the tail
// with a single ellipsis when it overflows.
func TruncateGraphemes(s string, max int) string {
	if Graphemes(s) <= max {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	kept := 0
	for g.Next() && kept < max-1 {
		b.WriteString(g.Str())
		kept++
	}
	b.WriteString("…")
	return b.String()
}
