package crawler

import "strings"

// hardCharLimit keeps any single chunk inside the embedding API's input
// budget.
const hardCharLimit = 30000

// chunkText splits page text into chunks of roughly chunkSize tokens, using
// word count as the token estimate. Paragraphs are kept together when they
// fit; oversized paragraphs split by sentence, then by word.
func chunkText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	maxChars := chunkSize * 3

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentTokens = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		paraTokens := len(strings.Fields(para))

		if len(para) > maxChars {
			for _, sentence := range strings.SplitAfter(para, ". ") {
				sentTokens := len(strings.Fields(sentence))
				if len(sentence) > maxChars {
					for _, piece := range splitByWords(sentence, chunkSize) {
						flush()
						current = []string{piece}
						currentTokens = len(strings.Fields(piece))
					}
					continue
				}
				if currentTokens+sentTokens > chunkSize && len(current) > 0 {
					flush()
				}
				current = append(current, strings.TrimSpace(sentence))
				currentTokens += sentTokens
			}
			continue
		}

		if currentTokens+paraTokens > chunkSize && len(current) > 0 {
			flush()
		}
		current = append(current, para)
		currentTokens += paraTokens
	}
	flush()

	var final []string
	for _, chunk := range chunks {
		if chunk = strings.TrimSpace(chunk); chunk == "" {
			continue
		}
		if len(chunk) > hardCharLimit {
			final = append(final, splitByChars(chunk, hardCharLimit)...)
		} else {
			final = append(final, chunk)
		}
	}
	return final
}

// splitByWords cuts text into pieces of at most budget words.
func splitByWords(text string, budget int) []string {
	words := strings.Fields(text)
	var pieces []string
	for len(words) > budget {
		pieces = append(pieces, strings.Join(words[:budget], " "))
		words = words[budget:]
	}
	if len(words) > 0 {
		pieces = append(pieces, strings.Join(words, " "))
	}
	return pieces
}

// splitByChars cuts text into pieces of at most limit bytes, breaking at
// word boundaries.
func splitByChars(text string, limit int) []string {
	var pieces []string
	var piece []string
	length := 0
	for _, word := range strings.Fields(text) {
		if length+len(word) > limit && len(piece) > 0 {
			pieces = append(pieces, strings.Join(piece, " "))
			piece, length = nil, 0
		}
		piece = append(piece, word)
		length += len(word) + 1
	}
	if len(piece) > 0 {
		pieces = append(pieces, strings.Join(piece, " "))
	}
	return pieces
}
