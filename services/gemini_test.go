package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionList(t *testing.T) {
	questions, err := parseQuestionList(`["Tell me about yourself.", "  Why this role?  ", ""]`)
	require.NoError(t, err)

	assert.Equal(t, []string{"Tell me about yourself.", "Why this role?"}, questions)
}

func TestParseQuestionListEmpty(t *testing.T) {
	_, err := parseQuestionList(`["", "  "]`)
	assert.Error(t, err, "an all-blank response must not produce an interview")

	_, err = parseQuestionList(`[]`)
	assert.Error(t, err)
}

func TestParseQuestionListMalformed(t *testing.T) {
	_, err := parseQuestionList(`{"not": "a list"}`)
	assert.Error(t, err)
}

func TestParseFeedback(t *testing.T) {
	feedback, err := parseFeedback(`{"overallScore": 8.5, "strengths": "Clear structure.", "areasOfImprovement": "More depth on system design."}`)
	require.NoError(t, err)

	assert.Equal(t, 8.5, feedback.OverallScore)
	assert.Equal(t, "Clear structure.", feedback.Strengths)
	assert.Equal(t, "More depth on system design.", feedback.AreasOfImprovement)
}

func TestParseFeedbackOutOfRangeScoreKept(t *testing.T) {
	// An out-of-range score is logged, not rejected. The record keeps the
	// value the generator returned.
	feedback, err := parseFeedback(`{"overallScore": 120, "strengths": "s", "areasOfImprovement": "a"}`)
	require.NoError(t, err)
	assert.Equal(t, float64(120), feedback.OverallScore)
}

func TestParseFeedbackMalformed(t *testing.T) {
	_, err := parseFeedback(`not json`)
	assert.Error(t, err)
}
