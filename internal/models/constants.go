package models

const (
	// SourceColumn is the column whose value identifies a FAQ entry in metadata.
	SourceColumn   = "prompt"
	ResponseColumn = "response"

	ContextSeparator = "\n\n"

	// NoQuestionFound is returned by the quiz generator when a stored document yields no prompt.
	NoQuestionFound = "No question found."

	// IDontKnow is the fallback the prompt asks the model to use when the context has no answer.
	IDontKnow = "I don't know."

	// PromptExtractRegex pulls the prompt text out of a serialized document.
	PromptExtractRegex = `(?s)prompt:(.*?)response:`
)

var (
	// AnswerPromptTemplate is filled with {context} and {question} in f-string format.
	AnswerPromptTemplate = `Given the following context and a question, generate an answer based on this context only.
In the answer try to provide as much text as possible from "response" section in the source document context without making much changes.
If the answer is not found in the context, kindly state "I don't know." Don't try to make up an answer.

CONTEXT: {context}

QUESTION: {question}`
)
