package grammar

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clearEventsSource = `    @Test
    public void clearEventsTest() throws InterruptedException {

        onView(allOf(withId(R.id.overviewFragment), withContentDescription("Overview"))).perform(click());
        onView(withContentDescription("More options")).perform(click());
        Thread.sleep(1000);
        onView(withText("Event data")).perform(click());
        Thread.sleep(1000);
        onView(withText("Clear events")).perform(click());
        Thread.sleep(1000);
        onView(withText("YES")).perform(click());

        onView(allOf(withClassName(containsStringIgnoringCase("CardView")), withParentIndex(0),
                withParent(withId(R.id.latestReminders)))).check(doesNotExist());

    }`

const addNewFoodSource = `    @Test
    public void addNewFoodTest() {
        onView(withContentDescription("Open Navigator")).perform(click());
        onView(withId(R.id.nav_food_database)).perform(click());
        onView(allOf(withId(R.id.fab_primary), withContentDescription("New entry")))
                .perform(click());
        onView(allOf(withId(R.id.edit_text), withText("Name")))
                .perform(typeText("mushroom"));
        onView(withId(R.id.fab_primary)).perform(click());

        onView(allOf(withText("Food"), withParent(hasDescendant(withText("CHO per 100 g")))))
                .check(matches(isDisplayed()));
    }`

func TestParseMethodClearEvents(t *testing.T) {
	m, err := ParseMethod(clearEventsSource)
	require.NoError(t, err)
	assert.Equal(t, "clearEventsTest", m.Name)
	require.Len(t, m.Steps, 6)

	first := m.Steps[0]
	assert.Equal(t, StepAct, first.Kind)
	assert.Equal(t, ActionClick, first.Detail.Action)
	require.Equal(t, KindAnd, first.Selector.Kind)
	require.Len(t, first.Selector.Children, 2)
	assert.Equal(t, "overviewFragment", first.Selector.Children[0].Value)

	last := m.Steps[5]
	assert.Equal(t, StepAssert, last.Kind)
	assert.Equal(t, AssertDoesNotExist, last.Detail.Assert)
	require.Equal(t, KindAnd, last.Selector.Kind)
	require.Len(t, last.Selector.Children, 3)
	assert.Equal(t, KindByClassNameContains, last.Selector.Children[0].Kind)
	assert.Equal(t, KindByParentIndex, last.Selector.Children[1].Kind)
	assert.Equal(t, 0, last.Selector.Children[1].Index)
	parent := last.Selector.Children[2]
	require.Equal(t, KindWithParent, parent.Kind)
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "latestReminders", parent.Children[0].Value)
}

func TestParseMethodAddNewFood(t *testing.T) {
	m, err := ParseMethod(addNewFoodSource)
	require.NoError(t, err)
	assert.Equal(t, "addNewFoodTest", m.Name)
	require.Len(t, m.Steps, 6)

	typing := m.Steps[3]
	assert.Equal(t, StepAct, typing.Kind)
	assert.Equal(t, ActionTypeText, typing.Detail.Action)
	assert.Equal(t, "mushroom", typing.Detail.Value)
	assert.Equal(t, "Name", typing.Selector.Children[1].Value)
	assert.Equal(t, ModeContainsIgnoreCase, typing.Selector.Children[1].Mode)

	last := m.Steps[5]
	assert.Equal(t, AssertIsDisplayed, last.Detail.Assert)
	descendant := last.Selector.Children[1].Children[0]
	require.Equal(t, KindHasDescendant, descendant.Kind)
	assert.Equal(t, "CHO per 100 g", descendant.Children[0].Value)
}

func TestParseMethodKotlinHeader(t *testing.T) {
	src := `    @Test
    fun openSettings() {
        onView(withContentDescription("More options")).perform(click())
        onView(withText("Settings")).perform(click())
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	assert.Equal(t, "openSettings", m.Name)
	require.Len(t, m.Steps, 2)
	assert.Equal(t, "More options", m.Steps[0].Selector.Value)
	assert.Equal(t, "Settings", m.Steps[1].Selector.Value)
}

func TestParseMethodKotlinMultilineChains(t *testing.T) {
	src := `    @Test
    fun renameTracker() {
        onView(withId(R.id.tracker_name))
            .perform(replaceText("Water"))
        Thread.sleep(500)
        onView(withId(R.id.save_button)).perform(click())
        onView(withText("Water"))
            .check(matches(isDisplayed()))
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Steps, 3)
	assert.Equal(t, ActionReplaceText, m.Steps[0].Detail.Action)
	assert.Equal(t, "Water", m.Steps[0].Detail.Value)
	assert.Equal(t, ActionClick, m.Steps[1].Detail.Action)
	assert.Equal(t, AssertIsDisplayed, m.Steps[2].Detail.Assert)
}

func TestParseMethodRoundTrip(t *testing.T) {
	for _, src := range []string{clearEventsSource, addNewFoodSource} {
		first, err := ParseMethod(src)
		require.NoError(t, err)

		var b strings.Builder
		b.WriteString("public void " + first.Name + "() {\n")
		for _, step := range first.Steps {
			b.WriteString("    " + step.String() + "\n")
		}
		b.WriteString("}\n")

		second, err := ParseMethod(b.String())
		require.NoError(t, err)
		if diff := cmp.Diff(first.Steps, second.Steps); diff != "" {
			t.Fatalf("%s: steps not stable across render (-first +second):\n%s", first.Name, diff)
		}
	}
}

func TestParseMethodDropsStateMatchers(t *testing.T) {
	src := `public void stateMatchers() {
        onView(allOf(withId(R.id.save), isDisplayed(), isEnabled())).perform(click());
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Steps, 1)
	sel := m.Steps[0].Selector
	assert.Equal(t, KindByID, sel.Kind)
	assert.Equal(t, "save", sel.Value)
}

func TestParseMethodViewMatchersPrefix(t *testing.T) {
	src := `public void prefixed() {
        onView(ViewMatchers.withId(android.R.id.button1)).perform(click());
        onView(withId(R.id.name)).check(matches(ViewMatchers.withText("Claritin")));
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Steps, 2)
	assert.Equal(t, "button1", m.Steps[0].Selector.Value)
	assert.Equal(t, AssertMatchesText, m.Steps[1].Detail.Assert)
	assert.Equal(t, "Claritin", m.Steps[1].Detail.Value)
}

func TestParseMethodMultiActionPerform(t *testing.T) {
	src := `public void scrollAndClick() {
        onView(withText("Advanced settings")).perform(scrollTo(), click());
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Steps, 2)
	assert.Equal(t, ActionScrollTo, m.Steps[0].Detail.Action)
	assert.Equal(t, ActionClick, m.Steps[1].Detail.Action)

	m.Steps[0].Selector.Value = "changed"
	assert.Equal(t, "Advanced settings", m.Steps[1].Selector.Value)
}

func TestParseMethodNavigationHelpers(t *testing.T) {
	src := `public void goBack() {
        onView(withId(R.id.search)).perform(replaceText("water"));
        closeSoftKeyboard();
        pressBack();
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Steps, 3)
	assert.Equal(t, ActionReplaceText, m.Steps[0].Detail.Action)
	assert.Equal(t, "water", m.Steps[0].Detail.Value)
	assert.Equal(t, ActionCloseSoftKeyboard, m.Steps[1].Detail.Action)
	assert.Nil(t, m.Steps[1].Selector)
	assert.Equal(t, ActionPressBack, m.Steps[2].Detail.Action)
}

func TestParseMethodUnsupportedConstruct(t *testing.T) {
	src := `public void usesOnData() {
        onData(anything()).atPosition(2).perform(click());
    }`
	_, err := ParseMethod(src)
	var unsupported *UnsupportedConstructError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "onData", unsupported.Construct)
}

func TestParseMethodUnknownMatcher(t *testing.T) {
	src := `public void customMatcher() {
        onView(withTagValue(is("ready"))).perform(click());
    }`
	_, err := ParseMethod(src)
	var unsupported *UnsupportedConstructError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "withTagValue", unsupported.Construct)
}

func TestParseMethodMalformedStatement(t *testing.T) {
	src := `public void broken() {
        int count = 3;
    }`
	_, err := ParseMethod(src)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestParseMethodNoHeader(t *testing.T) {
	_, err := ParseMethod(`onView(withId(R.id.x)).perform(click());`)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseMethodDuplicateLeafNote(t *testing.T) {
	src := `public void ambiguous() {
        onView(allOf(withText("Yes"), withText("No"))).perform(click());
    }`
	m, err := ParseMethod(src)
	require.NoError(t, err)
	require.Len(t, m.Notes, 1)
	assert.Contains(t, m.Notes[0], "byText")
	require.Len(t, m.Steps, 1)
	assert.Len(t, m.Steps[0].Selector.Children, 2)
}

func TestParseStringExprModes(t *testing.T) {
	tests := []struct {
		expr string
		val  string
		mode MatchMode
	}{
		{`"plain"`, "plain", ModeContainsIgnoreCase},
		{`equalsIgnoreCase("x")`, "x", ModeEqualsIgnoreCase},
		{`equals("x")`, "x", ModeEqualsIgnoreCase},
		{`containsStringIgnoringCase("x")`, "x", ModeContainsIgnoreCase},
		{`containsIgnoreCase("x")`, "x", ModeContainsIgnoreCase},
		{`contains("x")`, "x", ModeContains},
		{`startsWithIgnoreCase("x")`, "x", ModeStartsWithIgnoreCase},
		{`endsWithIgnoreCase("x")`, "x", ModeEndsWithIgnoreCase},
	}
	for _, tt := range tests {
		val, mode, ok := parseStringExpr(tt.expr)
		require.True(t, ok, tt.expr)
		assert.Equal(t, tt.val, val, tt.expr)
		assert.Equal(t, tt.mode, mode, tt.expr)
	}

	_, _, ok := parseStringExpr(`someVariable`)
	assert.False(t, ok)
}

func TestScanStatementsJoinsContinuations(t *testing.T) {
	body := `
        onView(allOf(withId(R.id.fab_primary), withContentDescription("New entry")))
                .perform(click());
        // comment line
        onView(withId(R.id.fab_primary)).perform(click());
    `
	stmts := scanStatements(body)
	require.Len(t, stmts, 2)
	assert.Equal(t, `onView(allOf(withId(R.id.fab_primary), withContentDescription("New entry"))).perform(click());`, stmts[0])
}
