package appointment

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

type localeLayout struct {
	date string
	time string
}

var (
	supportedLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.MustParse("en-IN"),
		language.German,
		language.French,
		language.Spanish,
		language.Japanese,
	}
	localeLayouts = []localeLayout{
		{date: "1/2/2006", time: "03:04 PM"},
		{date: "02/01/2006", time: "15:04"},
		{date: "2/1/2006", time: "03:04 pm"},
		{date: "2.1.2006", time: "15:04"},
		{date: "02/01/2006", time: "15:04"},
		{date: "2/1/2006", time: "15:04"},
		{date: "2006/1/2", time: "15:04"},
	}
	localeMatcher = language.NewMatcher(supportedLocales)
)

// Zone-less layouts are read in the viewer's zone, the way a browser reads a
// local date-time string.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Formatter renders appointment dates for one viewer locale and timezone.
type Formatter struct {
	locale   language.Tag
	location *time.Location
	layout   localeLayout
}

// NewFormatter builds a formatter. An empty locale means en-US and an empty
// timezone means the process local zone.
func NewFormatter(locale, timezone string) (*Formatter, error) {
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" && !strings.EqualFold(tz, "local") {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		loc = l
	}

	tag := language.AmericanEnglish
	if s := strings.TrimSpace(locale); s != "" {
		parsed, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
		}
		tag = parsed
	}

	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		idx = 0
	}

	return &Formatter{
		locale:   supportedLocales[idx],
		location: loc,
		layout:   localeLayouts[idx],
	}, nil
}

// DefaultFormatter is en-US in UTC.
func DefaultFormatter() *Formatter {
	return &Formatter{
		locale:   language.AmericanEnglish,
		location: time.UTC,
		layout:   localeLayouts[0],
	}
}

func (f *Formatter) Locale() string {
	return f.locale.String()
}

func (f *Formatter) Location() *time.Location {
	return f.location
}

// DateTime renders the date and time parts of an ISO-8601 value. Both parts
// are empty when the value is absent or cannot be parsed.
func (f *Formatter) DateTime(iso string) (string, string) {
	t, ok := f.Parse(iso)
	if !ok {
		return "", ""
	}
	t = t.In(f.location)
	return t.Format(f.layout.date), t.Format(f.layout.time)
}

// Parse reads an ISO-8601 date or date-time. Values without an offset are
// taken in the formatter's zone; a bare date is taken as UTC midnight.
func (f *Formatter) Parse(iso string) (time.Time, bool) {
	s := strings.TrimSpace(iso)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, f.location); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
