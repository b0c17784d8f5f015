package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlug = regexp.MustCompile(`[^a-z0-9]+`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Slugify lowercases s, strips diacritics and joins the remaining
// alphanumeric runs with hyphens. An empty result becomes "app".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(folded), "-"), "-")
	if slug == "" {
		return "app"
	}
	return slug
}

// UniqueSlug disambiguates a taken slug with a millisecond timestamp.
func UniqueSlug(base string, now time.Time) string {
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// IsUUID reports whether s has the canonical 8-4-4-4-12 hex form.
func IsUUID(s string) bool { return uuidRe.MatchString(s) }
