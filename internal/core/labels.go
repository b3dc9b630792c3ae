package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	LanguageKreyol  Language = "kreyol"
	LanguageFrench  Language = "french"
	LanguageEnglish Language = "english"
	LanguageSpanish Language = "spanish"
)

// Language is the UI language stored for a user.
type Language string

var statusLabels = map[string]string{
	"completed": "Konfime",
	"pending":   "An analiz",
	"cancelled": "Anile",
	"failed":    "Echwe",
}

var typeLabels = map[string]string{
	"send":         "Voye",
	"deposit":      "Depo",
	"withdrawal":   "Retrè",
	"request":      "Reqèt",
	"bill_payment": "Peman biznis",
}

// StatusLabel returns the Kreyòl label of a transaction status.
func StatusLabel(status string) string {
	if l, ok := statusLabels[strings.ToLower(status)]; ok {
		return l
	}
	return status
}

// TypeLabel prefers the backend display_type, then the Kreyòl label.
func TypeLabel(t Transaction) string {
	if t.DisplayType != "" {
		return t.DisplayType
	}
	if l, ok := typeLabels[strings.ToLower(t.TransactionType)]; ok {
		return l
	}
	if t.TransactionType == "" {
		return "-"
	}
	return t.TransactionType
}

// ConfirmationCode is the upper-cased last 8 characters of a transaction id.
func ConfirmationCode(id ID) string {
	s := string(id)
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	return strings.ToUpper(s)
}

// FormatTimeAgo renders a Kreyòl relative time.
func FormatTimeAgo(t, now time.Time) string {
	minutes := int(now.Sub(t).Minutes())
	switch {
	case minutes < 1:
		return "Kounye a"
	case minutes < 60:
		return fmt.Sprintf("%d minit pase", minutes)
	case minutes < 1440:
		return fmt.Sprintf("%d è pase", minutes/60)
	default:
		return fmt.Sprintf("%d jou pase", minutes/1440)
	}
}

// ParseLanguage falls back to Kreyòl for unknown values.
func ParseLanguage(s string) Language {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case LanguageKreyol, LanguageFrench, LanguageEnglish, LanguageSpanish:
		return l
	default:
		return LanguageKreyol
	}
}

// IsValid reports whether l is one of the supported languages.
func (l Language) IsValid() bool {
	switch l {
	case LanguageKreyol, LanguageFrench, LanguageEnglish, LanguageSpanish:
		return true
	}
	return false
}
