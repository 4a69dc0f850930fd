package pipeline

import (
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/aceteam-ai/conduit/internal/ids"
	"github.com/aceteam-ai/conduit/internal/llm"
)

// Category is one of the fourteen error categories of spec §4.3's error
// taxonomy / §7's per-category table.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuth           Category = "auth"
	CategoryRateLimit      Category = "rate-limit"
	CategoryQuota          Category = "quota"
	CategoryContentPolicy  Category = "content-policy"
	CategoryContextWindow  Category = "context-window"
	CategoryModelNotFound  Category = "model-not-found"
	CategoryTimeout        Category = "timeout"
	CategoryServerError    Category = "server-error"
	CategoryNetwork        Category = "network"
	CategoryEmptyResponse  Category = "empty-response"
	CategoryCensored       Category = "censored"
	CategorySDKParsing     Category = "sdk-parsing"
	CategoryUnknown        Category = "unknown"
)

// Disposition is whether a category should be retried by the queue runner.
type Disposition string

const (
	Permanent Disposition = "permanent"
	Transient Disposition = "transient"
)

// dispositions maps every category to its retry behavior, per spec §7.
var dispositions = map[Category]Disposition{
	CategoryValidation:    Permanent,
	CategoryAuth:          Permanent,
	CategoryRateLimit:     Transient,
	CategoryQuota:         Permanent,
	CategoryContentPolicy: Transient,
	CategoryContextWindow: Permanent,
	CategoryModelNotFound: Permanent,
	CategoryTimeout:       Transient,
	CategoryServerError:   Transient,
	CategoryNetwork:       Transient,
	CategoryEmptyResponse: Transient,
	CategoryCensored:      Transient,
	CategorySDKParsing:    Transient,
	CategoryUnknown:       Transient,
}

// GenerationError is the classified, user-facing error surfaced by a failed
// generation job, carrying a short reference id for support correlation
// (spec §4.3: "12-char reference id").
type GenerationError struct {
	Category    Category
	Disposition Disposition
	ReferenceID string
	Message     string
	cause       error
}

func (e *GenerationError) Error() string {
	return e.Message + " (ref " + e.ReferenceID + ")"
}

func (e *GenerationError) Unwrap() error { return e.cause }

// Classify maps err to a Category using HTTP-status-first, then regex,
// then network-error-code classification, per spec §4.3's "failure
// semantics" paragraph, and wraps it with a fresh reference id.
func Classify(err error) *GenerationError {
	cat := classifyCategory(err)
	return &GenerationError{
		Category:    cat,
		Disposition: dispositions[cat],
		ReferenceID: ids.ReferenceID(),
		Message:     err.Error(),
		cause:       err,
	}
}

func classifyCategory(err error) Category {
	var statusErr *llm.HTTPStatusError
	if errors.As(err, &statusErr) {
		if cat, ok := classifyStatus(statusErr.StatusCode); ok {
			return cat
		}
	}

	if errors.Is(err, llm.ErrEmptyResponse) {
		return CategoryEmptyResponse
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range regexRules {
		if rule.pattern.MatchString(msg) {
			return rule.category
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	return CategoryUnknown
}

// classifyStatus applies HTTP-status-first classification.
func classifyStatus(status int) (Category, bool) {
	switch status {
	case 400:
		return CategoryValidation, true
	case 401, 403:
		return CategoryAuth, true
	case 404:
		return CategoryModelNotFound, true
	case 408:
		return CategoryTimeout, true
	case 413, 422:
		return CategoryContextWindow, true
	case 429:
		return CategoryRateLimit, true
	case 451:
		return CategoryCensored, true
	}
	if status >= 500 {
		return CategoryServerError, true
	}
	return "", false
}

type regexRule struct {
	pattern  *regexp.Regexp
	category Category
}

// regexRules is consulted when the HTTP status (if any) isn't decisive,
// matching against the lowercased error message.
var regexRules = []regexRule{
	{regexp.MustCompile(`insufficient[_ ]quota|billing|credit balance`), CategoryQuota},
	{regexp.MustCompile(`content[_ ]polic|flagged|moderation`), CategoryContentPolicy},
	{regexp.MustCompile(`context[_ ]length|maximum context|too many tokens`), CategoryContextWindow},
	{regexp.MustCompile(`model[_ ]not[_ ]found|no such model|unknown model`), CategoryModelNotFound},
	{regexp.MustCompile(`rate limit|too many requests`), CategoryRateLimit},
	{regexp.MustCompile(`censor`), CategoryCensored},
	{regexp.MustCompile(`unexpected end of json|invalid character|cannot unmarshal`), CategorySDKParsing},
	{regexp.MustCompile(`deadline exceeded|context deadline|i/o timeout`), CategoryTimeout},
	{regexp.MustCompile(`econnreset|etimedout|econnrefused|connection reset|connection refused`), CategoryNetwork},
}
