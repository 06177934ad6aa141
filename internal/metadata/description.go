package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

const maxDescriptionSubjects = 8

// GenerateDescription renders listing copy for book. Unknown fields are omitted.
func GenerateDescription(book Book) string {
	var b strings.Builder
	title := strings.TrimSpace(book.Title)
	if title == "" {
		title = "Untitled"
	}
	b.WriteString(title)
	if authors := joinNonEmpty(book.Authors, maxDescriptionSubjects); authors != "" {
		fmt.Fprintf(&b, " by %s", authors)
	}
	b.WriteString("\n\nDigital edition delivered as a PDF file. No physical item will be shipped.\n\n")

	details := [][2]string{
		{"First published", positive(book.PublishYear)},
		{"Publisher", first(book.Publishers)},
		{"Pages", positive(book.NumberOfPages)},
		{"Language", joinNonEmpty(book.Languages, 3)},
		{"ISBN-13", book.ISBN13},
		{"ISBN-10", book.ISBN10},
	}
	var wroteDetails bool
	for _, d := range details {
		if d[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", d[0], d[1])
		wroteDetails = true
	}
	if subjects := joinNonEmpty(book.Subjects, maxDescriptionSubjects); subjects != "" {
		if wroteDetails {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Topics: %s\n", subjects)
	}
	b.WriteString("\nThe file is available to download right after purchase from your Etsy account.")
	return b.String()
}

// Tags derives up to limit listing tags from the book subjects, each at most 20 characters.
func Tags(book Book, limit int) []string {
	seen := make(map[string]struct{}, limit)
	tags := make([]string, 0, limit)
	for _, s := range book.Subjects {
		tag := strings.ToLower(strings.TrimSpace(s))
		if tag == "" || len(tag) > 20 {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		if len(tags) == limit {
			break
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(values []string, limit int) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
		if len(out) == limit {
			break
		}
	}
	return strings.Join(out, ", ")
}
