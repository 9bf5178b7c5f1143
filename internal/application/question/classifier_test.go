package question

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/config"
)

func TestClassifyTypeAxis(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		question string
		want     Type
	}{
		{"How do I rebuild the projection?", TypeProcedural},
		{"Compare the T4 frame with the T5 frame", TypeComparative},
		{"When did we change the battery supplier?", TypeTemporal},
		{"Why does the motor overheat at full load?", TypeAnalytical},
		{"What is the maximum altitude?", TypeFactual},
		{"Tell me about the navigation module", TypeExploratory},
		{"Thanks, what do you mean by that?", TypeConversational},
	}
	for _, tc := range cases {
		got := c.Classify(tc.question, nil)
		assert.Equal(t, tc.want, got.Type, "question=%q", tc.question)
	}
}

func TestClassifyScopeAxis(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		question string
		want     Scope
	}{
		{"What is the maximum payload capacity?", ScopeStructuredFacts},
		{"Who changed the landing gear design?", ScopeActivityHistory},
		{"What are we working on in this project?", ScopeProjectMetadata},
		{"Summarize what the requirements document says", ScopeDocumentKnowledge},
	}
	for _, tc := range cases {
		got := c.Classify(tc.question, nil)
		assert.Equal(t, tc.want, got.Scope, "question=%q", tc.question)
	}
}

func TestClassifyEmptyQuestion(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("   ", nil)
	assert.Equal(t, TypeConversational, got.Type)
	assert.Equal(t, ScopeUnclear, got.Scope)
	assert.Zero(t, got.Confidence)
	assert.True(t, got.LowConfidence())
}

func TestClassifyIdentifierQueryImpliesStructuredFacts(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("rotor diameter of T4", nil)
	assert.Equal(t, TypeFactual, got.Type)
	assert.Equal(t, ScopeStructuredFacts, got.Scope)
	assert.False(t, got.LowConfidence())
}

func TestClassifyShortFollowUpWithHistory(t *testing.T) {
	c := NewClassifier()

	// 无历史时短问题不按对话式处理
	noHistory := c.Classify("那续航呢", nil)
	assert.NotEqual(t, TypeConversational, noHistory.Type)

	withHistory := c.Classify("那续航呢", []string{"电池容量是多少"})
	assert.Equal(t, TypeConversational, withHistory.Type)
}

func TestClassifyUnmatchedDefaults(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("随便写点内容没有任何关键词", nil)
	assert.Equal(t, TypeExploratory, got.Type)
	assert.Equal(t, ScopeUnclear, got.Scope)
	assert.True(t, got.LowConfidence())
}

func TestClassifyConfidenceAccumulates(t *testing.T) {
	c := NewClassifier()

	// 双轴命中且多重命中：0.3+0.25+0.25+0.15
	got := c.Classify("what is the maximum payload capacity", nil)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.False(t, got.LowConfidence())
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier()

	first := c.Classify("why did the maximum weight change", nil)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, c.Classify("why did the maximum weight change", nil))
	}
}

func newTestSelector() *Selector {
	return NewSelector(&config.RetrievalConfig{
		SemanticWeight: 0.5,
		LexicalLimit:   20,
		VectorLimit:    20,
		FusedLimit:     12,
	})
}

func TestBuildPlanLowConfidenceSuperset(t *testing.T) {
	s := newTestSelector()

	plan := s.BuildPlan("随便写点内容没有任何关键词", Classification{
		Type: TypeExploratory, Scope: ScopeUnclear, Confidence: 0.3,
	})
	assert.True(t, plan.Lexical)
	assert.True(t, plan.Semantic)
	assert.True(t, plan.Ontology)
	assert.True(t, plan.Turns)
}

func TestBuildPlanStructuredFacts(t *testing.T) {
	s := newTestSelector()

	plan := s.BuildPlan("what is the maximum payload", Classification{
		Type: TypeFactual, Scope: ScopeStructuredFacts, Confidence: 0.8,
	})
	assert.True(t, plan.Ontology)
	assert.True(t, plan.Lexical)
	assert.False(t, plan.Semantic)
	assert.True(t, plan.Turns)
}

func TestBuildPlanDocumentKnowledge(t *testing.T) {
	s := newTestSelector()

	plan := s.BuildPlan("summarize the requirements document", Classification{
		Type: TypeExploratory, Scope: ScopeDocumentKnowledge, Confidence: 0.8,
	})
	assert.True(t, plan.Lexical)
	assert.True(t, plan.Semantic)
	assert.False(t, plan.Ontology)
}

func TestBuildPlanProjectMetadataTurnsOnly(t *testing.T) {
	s := newTestSelector()

	plan := s.BuildPlan("what is this project about", Classification{
		Type: TypeExploratory, Scope: ScopeProjectMetadata, Confidence: 0.8,
	})
	assert.False(t, plan.Lexical)
	assert.False(t, plan.Semantic)
	assert.False(t, plan.Ontology)
	assert.True(t, plan.Turns)
}

func TestBuildPlanTemporalDoublesTurnWindow(t *testing.T) {
	s := newTestSelector()

	base := s.BuildPlan("summarize the document", Classification{
		Type: TypeExploratory, Scope: ScopeDocumentKnowledge, Confidence: 0.8,
	})
	temporal := s.BuildPlan("when did the design change", Classification{
		Type: TypeTemporal, Scope: ScopeActivityHistory, Confidence: 0.8,
	})
	assert.Equal(t, base.TurnLimit*2, temporal.TurnLimit)
}

func TestBuildPlanIdentifierBiasLowersSemanticWeight(t *testing.T) {
	s := newTestSelector()

	plan := s.BuildPlan("rotor diameter of T4", Classification{
		Type: TypeFactual, Scope: ScopeStructuredFacts, Confidence: 0.9,
	})
	assert.Less(t, plan.SemanticWeight, 0.5)
}
