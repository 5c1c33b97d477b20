package chatflow

import (
	"regexp"
	"strings"
	"time"
)

// Context keys written by the parameter extractor
const (
	ParamEmail  = "email"
	ParamEmails = "emails"
	ParamDate   = "date"
	ParamTime   = "time"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// MM/DD/YYYY and YYYY-MM-DD
	dateSlashRe = regexp.MustCompile(`\b(0?[1-9]|1[0-2])/(0?[1-9]|[12][0-9]|3[01])/\d{4}\b`)
	dateISORe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dateWordRe  = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday)\b`)

	// H:MM with optional AM/PM
	timeRe = regexp.MustCompile(`\b([01]?[0-9]|2[0-3]):[0-5][0-9](\s*[AaPp][Mm])?`)
)

// ParameterExtractor pulls structured hints (email addresses, dates, times)
// out of free-form user text into context entries. It is a leaf component
// with no dependencies.
type ParameterExtractor struct {
	nowFn func() time.Time
}

// NewParameterExtractor creates an extractor
func NewParameterExtractor() *ParameterExtractor {
	return &ParameterExtractor{nowFn: time.Now}
}

// Extract returns a fresh context holding everything recognized in the
// message
func (p *ParameterExtractor) Extract(message string) Context {
	ctx := NewContext()
	p.ExtractInto(message, ctx)
	return ctx
}

// ExtractInto writes recognized parameters into an existing context
func (p *ParameterExtractor) ExtractInto(message string, ctx Context) {
	if emails := emailRe.FindAllString(message, -1); len(emails) > 0 {
		ctx.Set(ParamEmail, StringValue(emails[0]))
		list := make([]any, len(emails))
		for i, e := range emails {
			list[i] = e
		}
		ctx.Set(ParamEmails, ObjectValue(list))
	}

	if date, ok := p.extractDate(message); ok {
		ctx.Set(ParamDate, StringValue(date))
	}

	if t := timeRe.FindString(message); t != "" {
		ctx.Set(ParamTime, StringValue(strings.TrimSpace(t)))
	}
}

func (p *ParameterExtractor) extractDate(message string) (string, bool) {
	if d := dateSlashRe.FindString(message); d != "" {
		return d, true
	}
	if d := dateISORe.FindString(message); d != "" {
		return d, true
	}
	if w := dateWordRe.FindString(message); w != "" {
		now := p.nowFn()
		switch strings.ToLower(w) {
		case "today":
			return now.Format("2006-01-02"), true
		case "tomorrow":
			return now.AddDate(0, 0, 1).Format("2006-01-02"), true
		case "yesterday":
			return now.AddDate(0, 0, -1).Format("2006-01-02"), true
		}
	}
	return "", false
}
