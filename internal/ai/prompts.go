package ai

import (
	"fmt"
	"strings"
)

const (
	summarizeSystemPrompt = "You are an expert summarizer. Read the document text you are given and write a clear, concise summary " +
		"that extracts the key points and main ideas. Prefer short paragraphs or bullet points. " +
		"Only use information that appears in the document."

	compareSystemPrompt = "You are an expert document analyst. You are given the text of two documents. " +
		"Provide a detailed analysis of their differences in content, structure, figures and terms. " +
		"If the documents are identical, state that."
)

const truncatedNote = "[The document text was cut short because of its length.]"

func summarizePrompt(name, text string, truncated bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following document.\n\nDOCUMENT: %s\n\n%s", name, text)
	if truncated {
		b.WriteString("\n\n" + truncatedNote)
	}
	return b.String()
}

func comparePrompt(nameA, textA string, truncA bool, nameB, textB string, truncB bool) string {
	var b strings.Builder
	b.WriteString("Compare the following two documents.\n\n")
	writeDoc := func(label, name, text string, truncated bool) {
		fmt.Fprintf(&b, "=== %s: %s ===\n%s\n", label, name, text)
		if truncated {
			b.WriteString(truncatedNote + "\n")
		}
		b.WriteString("\n")
	}
	writeDoc("DOCUMENT 1", nameA, textA, truncA)
	writeDoc("DOCUMENT 2", nameB, textB, truncB)
	return strings.TrimRight(b.String(), "\n")
}
