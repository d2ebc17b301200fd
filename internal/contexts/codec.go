package contexts

import "strings"

const (
	faqQuestionPrefix = "Q: "
	faqAnswerPrefix   = "A: "
	faqSeparator      = "\n\n"
)

// EncodeFAQ renders a question/answer pair into the canonical content form
// stored and embedded for FAQ contexts.
func EncodeFAQ(question, answer string) string {
	return faqQuestionPrefix + strings.TrimSpace(question) + faqSeparator + faqAnswerPrefix + strings.TrimSpace(answer)
}

// DecodeFAQ splits canonical FAQ content back into question and answer.
// Content that does not match the canonical form comes back as the answer
// with an empty question.
func DecodeFAQ(content string) (question, answer string) {
	before, after, found := strings.Cut(content, faqSeparator+faqAnswerPrefix)
	if !found || !strings.HasPrefix(before, faqQuestionPrefix) {
		return "", content
	}
	return strings.TrimPrefix(before, faqQuestionPrefix), after
}
