// Package i18n holds the locale handling shared by collection labels,
// row labels and generated documents. French is the fallback locale.
package i18n

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	French   = "fr"
	English  = "en"
	Fallback = French
)

// Supported lists the locales labels are written in. Order matters for
// negotiation: the first entry wins ties.
var Supported = []string{French, English}

var matcher = language.NewMatcher([]language.Tag{language.French, language.English})

// Text is a label translated per locale.
type Text map[string]string

// T builds a Text with a French and an English entry.
func T(fr, en string) Text {
	return Text{French: fr, English: en}
}

// Get returns the text for locale, then the fallback locale, then English.
func (t Text) Get(locale string) string {
	if len(t) == 0 {
		return ""
	}
	if s, ok := t[locale]; ok && s != "" {
		return s
	}
	if s, ok := t[Fallback]; ok && s != "" {
		return s
	}
	return t[English]
}

// IsSupported reports whether locale is one of the Supported locales.
func IsSupported(locale string) bool {
	for _, l := range Supported {
		if l == locale {
			return true
		}
	}
	return false
}

// Negotiate picks a supported locale from an Accept-Language header value.
// An empty or unparseable header yields def.
func Negotiate(acceptLanguage, def string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return def
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return def
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return def
	}
	return Supported[idx]
}

// FormatDate renders a calendar date the way the admin displays it:
// dd/MM/yyyy in French, MM/dd/yyyy in English.
func FormatDate(t time.Time, locale string) string {
	if locale == English {
		return t.Format("01/02/2006")
	}
	return t.Format("02/01/2006")
}

// ParseDate accepts the date encodings the admin sends: RFC3339 timestamps
// and plain YYYY-MM-DD days.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
