package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capgen/internal/capability"
	"capgen/internal/grammar"
)

func medicineCapability(t *testing.T) *capability.Capability {
	t.Helper()
	m, err := grammar.ParseMethod(`public void addNewMedicineTest() {
        onView(withId(R.id.fabAddMedicine)).perform(click());
        onView(withId(R.id.medicineName)).perform(typeText("Claritin"));
        onView(withText("OK")).perform(click());
        onView(withId(R.id.medicineList)).check(matches(withText("Claritin")));
    }`)
	require.NoError(t, err)
	c, err := capability.NewCompiler().Compile("com.futsch1.medtimer", m)
	require.NoError(t, err)
	return c
}

func TestBuildBindsEveryReference(t *testing.T) {
	c := medicineCapability(t)

	p, err := Build(c, map[string]string{"slot1": "Ibuprofen"})
	require.NoError(t, err)

	assert.True(t, p.Complete())
	require.NoError(t, p.RequireComplete())
	assert.Equal(t, "Ibuprofen", p.Steps[1].Detail.Value)
	assert.Equal(t, "Ibuprofen", p.Steps[3].Detail.Value)
	require.NotNil(t, p.SuccessCondition)
	assert.Equal(t, "Ibuprofen", p.SuccessCondition.Detail.Value)
	assert.Equal(t, map[string]string{"slot1": "Ibuprofen"}, p.Bindings)
}

func TestBuildLeavesCapabilityUntouched(t *testing.T) {
	c := medicineCapability(t)

	_, err := Build(c, map[string]string{"slot1": "Ibuprofen"})
	require.NoError(t, err)

	assert.Equal(t, "Claritin", c.Steps[1].Detail.Value)
}

func TestBuildReportsUnboundSlots(t *testing.T) {
	c := medicineCapability(t)

	p, err := Build(c, nil)
	require.NoError(t, err)

	assert.False(t, p.Complete())
	assert.Equal(t, []string{"slot1"}, p.Unbound)

	err = p.RequireComplete()
	var incomplete *SlotBindingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "addNewMedicine", incomplete.Capability)
	assert.Equal(t, []string{"slot1"}, incomplete.Missing)
}

func TestBuildRejectsUnknownSlot(t *testing.T) {
	c := medicineCapability(t)

	_, err := Build(c, map[string]string{"slot9": "x"})
	assert.Error(t, err)
}

func TestScriptRendersBoundSteps(t *testing.T) {
	c := medicineCapability(t)

	p, err := Build(c, map[string]string{"slot1": "Ibuprofen"})
	require.NoError(t, err)

	lines := p.Script()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], `typeText("Ibuprofen")`)
	assert.Contains(t, lines[3], `withText("Ibuprofen")`)
}
