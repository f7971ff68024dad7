package chat

import (
	"regexp"
)

// Rule is one contact-detection category. Rules are evaluated in order and
// the first match supplies the block reason.
type Rule struct {
	Reason  string
	Pattern *regexp.Regexp
}

// Filter blocks message bodies that try to move the conversation off the
// platform. It is a deliberately blunt heuristic tuned for recall: "call me
// crazy" trips the contact-request rule and that is accepted.
type Filter struct {
	rules []Rule
}

func NewFilter(rules []Rule) *Filter {
	return &Filter{rules: rules}
}

// DefaultRules is the stock rule set: phone numbers in their common shapes,
// messaging apps, contact-request phrases, emails, handles, and social
// platforms.
func DefaultRules() []Rule {
	return []Rule{
		{"message appears to contain a phone number", regexp.MustCompile(`\d{10,}`)},
		{"message appears to contain a phone number", regexp.MustCompile(`\d{3}[-.\s]\d{3}[-.\s]\d{4}`)},
		{"message appears to contain a phone number", regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`)},
		{"message appears to contain a phone number", regexp.MustCompile(`\+\d{1,3}[\s-]?\d{6,}`)},
		{"message appears to contain a phone number", regexp.MustCompile(`\b0\d{8,}\b`)},
		{"references to messaging apps are not allowed", regexp.MustCompile(`(?i)\b(whatsapp|telegram|signal|viber)\b`)},
		{"message appears to request phone contact", regexp.MustCompile(`(?i)\b(call me|text me|phone|mobile)\b`)},
		{"message appears to contain an email address", regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)},
		{"message appears to contain a social media handle", regexp.MustCompile(`@[a-zA-Z0-9_]{3,}`)},
		{"references to social media are not allowed", regexp.MustCompile(`(?i)\b(facebook|instagram|twitter|tiktok|linkedin|snapchat)\b`)},
	}
}

// Classify reports whether text should be blocked and why. No match means
// the message is clean.
func (f *Filter) Classify(text string) (bool, string) {
	for _, rule := range f.rules {
		if rule.Pattern.MatchString(text) {
			return true, rule.Reason
		}
	}
	return false, ""
}
