package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSectionsReplacesInPlace(t *testing.T) {
	existing := []Section{
		{Title: "Alpha", Status: SectionPending},
		{Title: "Beta", Status: SectionPending},
		{Title: "Gamma", Status: SectionPending},
	}
	updates := []Section{
		{Title: "Beta", Status: SectionCompleted, Content: "beta findings", Sources: []string{"https://b.example"}},
	}

	merged := MergeSections(existing, updates)

	require.Len(t, merged, 3)
	assert.Equal(t, "Alpha", merged[0].Title)
	assert.Equal(t, "Beta", merged[1].Title)
	assert.Equal(t, "Gamma", merged[2].Title)
	assert.Equal(t, SectionCompleted, merged[1].Status)
	assert.Equal(t, "beta findings", merged[1].Content)
	assert.Equal(t, SectionPending, merged[0].Status)
}

func TestMergeSectionsAppendsUnknownTitles(t *testing.T) {
	existing := []Section{{Title: "Alpha", Status: SectionCompleted, Content: "a"}}
	updates := []Section{{Title: "Delta", Status: SectionPending, Description: "new angle"}}

	merged := MergeSections(existing, updates)

	require.Len(t, merged, 2)
	assert.Equal(t, "Alpha", merged[0].Title)
	assert.Equal(t, "Delta", merged[1].Title)
}

func TestMergeSectionsLastAppliedWins(t *testing.T) {
	existing := []Section{{Title: "Alpha", Status: SectionPending}}

	merged := MergeSections(existing, []Section{{Title: "Alpha", Status: SectionResearching}})
	merged = MergeSections(merged, []Section{{Title: "Alpha", Status: SectionCompleted, Content: "final"}})

	require.Len(t, merged, 1)
	assert.Equal(t, SectionCompleted, merged[0].Status)
	assert.Equal(t, "final", merged[0].Content)
}

func TestMergeSectionsIdempotent(t *testing.T) {
	existing := []Section{
		{Title: "Alpha", Status: SectionPending},
		{Title: "Beta", Status: SectionPending},
	}
	update := []Section{{Title: "Alpha", Status: SectionCompleted, Content: "done"}}

	once := MergeSections(existing, update)
	twice := MergeSections(once, update)

	assert.Equal(t, once, twice)
}

func TestConsolidateSourcesDedupesCaseInsensitive(t *testing.T) {
	sections := []Section{
		{Title: "Alpha", Sources: []string{"https://a.example", "https://shared.example"}},
		{Title: "Beta", Sources: []string{"HTTPS://SHARED.EXAMPLE", "https://b.example"}},
	}

	sources := ConsolidateSources(sections)

	assert.Equal(t, []string{"https://a.example", "https://shared.example", "https://b.example"}, sources)
}

func TestConsolidateSourcesEmpty(t *testing.T) {
	assert.Empty(t, ConsolidateSources(nil))
	assert.Empty(t, ConsolidateSources([]Section{{Title: "Alpha"}}))
}

func TestPendingSections(t *testing.T) {
	sections := []Section{
		{Title: "Alpha", Status: SectionCompleted},
		{Title: "Beta", Status: SectionPending},
		{Title: "Gamma", Status: SectionPending},
	}

	pending := PendingSections(sections)
	require.Len(t, pending, 2)
	assert.Equal(t, "Beta", pending[0].Title)
	assert.Equal(t, 1, CompletedCount(sections))
}

func TestValidQueryType(t *testing.T) {
	assert.True(t, ValidQueryType("list"))
	assert.True(t, ValidQueryType("deep_dive"))
	assert.False(t, ValidQueryType("listicle"))
	assert.False(t, ValidQueryType(""))
}
