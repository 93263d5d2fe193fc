package llm

import (
	"fmt"
	"strings"
)

const transcribeInstruction = "Transcribe this dream narration exactly as spoken. Focus on the narrative details."

const analystInstruction = `
You are a world-class Jungian analyst.
Analyze the following dream for emotional themes, symbols, and archetypes.
Return a structured JSON response.
`

const illustrationTemplate = `A highly detailed surrealist painting representing the emotional core of this dream: %q. ` +
	`The style should be reminiscent of Salvador Dali and Rene Magritte, ethereal, dream-like, deeply symbolic, and visually striking.`

const companionTemplate = `
You are a helpful psychoanalytic companion helping the user explore their dream symbols.
Context of the dream: %s
Provide brief, insightful, and curious responses based on Jungian and archetypal psychology.
`

// TranscriptionFallback replaces an empty transcript.
const TranscriptionFallback = "Transcription failed."

// IllustrationPrompt builds the image request for a transcript.
func IllustrationPrompt(transcription string) string {
	return fmt.Sprintf(illustrationTemplate, strings.TrimSpace(transcription))
}

// CompanionPrompt builds the chat system instruction around the dream.
func CompanionPrompt(dreamContext string) string {
	return strings.TrimSpace(fmt.Sprintf(companionTemplate, strings.TrimSpace(dreamContext)))
}
