// Package ai provides the language-model oracle used by the dedup engine.
package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// Pre-compiled regular expressions; model output is parsed on every oracle call.
var (
	// Matches ```json\n{...}\n```, ```{...}```, ``` json{...}``` and friends
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Greedy outermost spans, tried after complete embedded values
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult is the outcome of a Parse call. Parsing never panics; failures are
// reported through Success and Error.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	Strategy     string // which strategy produced Data
	OriginalText string
}

// ParseOptions configures JSON parsing behavior
type ParseOptions struct {
	Context        string       // Context for error messages, e.g. "duplicate confirmation"
	DisableCleanup bool         // Only attempt a direct parse
	MaxInputSize   int          // Maximum input size in bytes (0 = 10MB)
	Logger         *slog.Logger // Debug logging of failed strategies (nil = silent)
}

const defaultMaxInputSize = 10 * 1024 * 1024

// Parse attempts to decode model output as JSON into T, tolerating the usual
// formatting quirks of language-model responses.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Remove code fences and retry
//  3. Fix trailing commas, unquoted keys and comments and retry
//  4. Extract embedded JSON objects or arrays from mixed prose and retry
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	var options ParseOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	maxSize := options.MaxInputSize
	if maxSize == 0 {
		maxSize = defaultMaxInputSize
	}

	if len(text) > maxSize {
		return createError[T](
			fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxSize),
			truncate(text, 1000),
			options.Context,
		)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return createError[T]("empty input", text, options.Context)
	}

	result, err := tryDirectParse[T](trimmed)
	if err == nil {
		return success(result, "direct", text)
	}
	if options.DisableCleanup {
		return createError[T](err.Error(), text, options.Context)
	}
	if options.Logger != nil {
		options.Logger.Debug("ai: direct JSON parse failed, trying cleanup strategies",
			"error", err.Error(),
			"preview", truncate(text, 100),
			"context", options.Context)
	}

	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](withoutFences); err == nil {
			return success(result, "code_fence", text)
		}
	}

	cleaned := cleanupJSON(withoutFences)
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return success(result, "cleanup", text)
	}

	// Extract from the original as well as the cleaned text: cleanup can damage prose
	// surrounding an otherwise valid payload.
	candidates := append(extractJSON(withoutFences), extractJSON(cleaned)...)
	for _, candidate := range candidates {
		if result, err := tryDirectParse[T](candidate); err == nil {
			return success(result, "extract", text)
		}
		if result, err := tryDirectParse[T](cleanupJSON(candidate)); err == nil {
			return success(result, "extract", text)
		}
	}

	return createError[T]("no parseable JSON payload found", text, options.Context)
}

// IsJSONList reports whether raw holds a JSON array (as opposed to an absent field,
// null, an object or a scalar).
func IsJSONList(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// DecodeList decodes each element of a JSON array independently. Elements that do not
// decode into T are skipped and counted, so one bad entry does not discard the rest.
func DecodeList[T any](raw json.RawMessage) (items []T, skipped int, err error) {
	if !IsJSONList(raw) {
		return nil, 0, fmt.Errorf("expected a JSON list")
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 0, fmt.Errorf("failed to split JSON list: %w", err)
	}
	items = make([]T, 0, len(elems))
	for _, elem := range elems {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown code fences, whether they wrap the entire text
// or appear somewhere inside it, plus single backticks wrapping the whole content.
func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		if m := codeFenceAnyRegex.FindStringSubmatch(text); m != nil {
			cleaned = m[1]
		}
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes common formatting issues in model-written JSON.
//
// Single quotes are left alone: converting them would corrupt apostrophes inside
// valid strings ("don't").
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	return strings.TrimSpace(cleaned)
}

// maxExtractSpans bounds how many embedded values extractJSON decodes from one response
const maxExtractSpans = 32

// extractJSON pulls JSON-looking spans out of mixed content, most likely first.
//
// Each '{' or '[' is tried as the start of a complete value; the decoder stops at the
// value's closing brace, so braces in prose after a payload ("left task {2} alone")
// do not leak into it. Spans are returned in text order, which keeps
// `[{"a":1},{"a":2}]` whole rather than reduced to its first element. The greedy
// outermost spans follow as a last resort for payloads that only parse after cleanup.
func extractJSON(text string) []string {
	var spans []string
	for i := 0; i < len(text) && len(spans) < maxExtractSpans; i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		end := i + int(dec.InputOffset())
		spans = append(spans, text[i:end])
		i = end - 1
	}

	object := objectRegex.FindString(text)
	array := arrayRegex.FindString(text)
	greedy := []string{object, array}
	if arrStart, objStart := strings.IndexByte(text, '['), strings.IndexByte(text, '{'); arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		greedy = []string{array, object}
	}
	for _, span := range greedy {
		if span != "" && !slices.Contains(spans, span) {
			spans = append(spans, span)
		}
	}
	return spans
}

func success[T any](data T, strategy, text string) ParseResult[T] {
	return ParseResult[T]{
		Success:      true,
		Data:         data,
		Strategy:     strategy,
		OriginalText: text,
	}
}

func createError[T any](message, text, context string) ParseResult[T] {
	var zero T
	errorMsg := message
	if context != "" {
		errorMsg = context + ": " + message
	}
	return ParseResult[T]{
		Success:      false,
		Data:         zero,
		Error:        errorMsg,
		OriginalText: text,
	}
}

// truncate shortens s to at most maxLen bytes plus an ellipsis, respecting UTF-8
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return safeTruncateString(s, maxLen) + "..."
}
