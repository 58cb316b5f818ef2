package specstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/evodash/internal/apperr"
)

func TestPatchFeature(t *testing.T) {
	doc := Default()
	doc.PutFeature("Chart", FeatureSpec{Component: "Chart.tsx", Description: "old"})

	inactive := FeatureInactive
	desc := "  Sales chart  "
	require.NoError(t, doc.PatchFeature("Chart", FeaturePatch{Status: &inactive, Description: &desc}))
	assert.Equal(t, FeatureInactive, doc.Features["Chart"].Status)
	assert.Equal(t, "Sales chart", doc.Features["Chart"].Description)

	bad := "archived"
	err := doc.PatchFeature("Chart", FeaturePatch{Status: &bad})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestAddWorkflow(t *testing.T) {
	doc := Default()
	require.NoError(t, doc.AddWorkflow(WorkflowSpec{Name: " onboarding "}))
	assert.Equal(t, "onboarding", doc.Workflows[0].Name)

	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(doc.AddWorkflow(WorkflowSpec{Name: "onboarding"})))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(doc.AddWorkflow(WorkflowSpec{Name: "   "})))
}

func TestFeatureNamesSorted(t *testing.T) {
	doc := Default()
	for _, n := range []string{"Zeta", "Alpha", "Mid"} {
		doc.PutFeature(n, FeatureSpec{Component: n + ".tsx"})
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, doc.FeatureNames())
}
