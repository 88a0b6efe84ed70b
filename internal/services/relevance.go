package services

// RelevanceClassifier decides whether a prompt belongs to the project domain
type RelevanceClassifier struct {
	vocab VocabularyProvider
}

// NewRelevanceClassifier creates a classifier over the given vocabulary
func NewRelevanceClassifier(vocab VocabularyProvider) *RelevanceClassifier {
	return &RelevanceClassifier{vocab: vocab}
}

// IsInDomain applies, in order:
//  1. off-topic match and no in-domain match: reject
//  2. in-domain match: accept
//  3. no signal either way: accept
func (c *RelevanceClassifier) IsInDomain(prompt string) bool {
	vocab := c.vocab.Vocabulary()
	normalized := normalizeText(prompt)

	inDomain := containsAny(normalized, vocab.InDomain)
	offTopic := containsAny(normalized, vocab.OffTopic)

	if offTopic && !inDomain {
		return false
	}
	return true
}
