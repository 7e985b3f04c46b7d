package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentTextFollowsHeaderOrder(t *testing.T) {
	entry := FAQEntry{
		Row:      2,
		Prompt:   "Do you provide internships?",
		Response: "No, we don't.",
		Extra:    []Field{{Name: "category", Value: "careers"}},
		Columns:  []string{"category", "prompt", "response"},
	}
	doc := NewDocument(entry)

	require.Equal(t, "row-2", doc.ID)
	require.Equal(t, "category: careers\nprompt: Do you provide internships?\nresponse: No, we don't.", doc.Content)
}

func TestDocumentTextDefaultsToPromptResponse(t *testing.T) {
	entry := FAQEntry{Prompt: "p", Response: "r"}
	require.Equal(t, "prompt: p\nresponse: r", entry.Text())
}

func TestDocumentMetadataRoundTrip(t *testing.T) {
	doc := NewDocument(FAQEntry{
		Row:      7,
		Prompt:   "Is there a refund policy?",
		Response: "Yes, within 7 days.",
		Extra:    []Field{{Name: "category", Value: "billing"}},
		Columns:  []string{"prompt", "response", "category"},
	})

	meta := doc.Metadata()
	require.Equal(t, "Is there a refund policy?", meta["source"])
	require.Equal(t, "7", meta["row"])

	restored, err := DocumentFromMetadata(doc.ID, doc.Content, meta)
	require.NoError(t, err)
	require.Equal(t, doc, restored)
}

func TestDocumentFromMetadataInvalidRow(t *testing.T) {
	_, err := DocumentFromMetadata("row-x", "", map[string]string{"row": "x"})
	require.Error(t, err)
}
