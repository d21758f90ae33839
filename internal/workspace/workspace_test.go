package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleClass = `import androidx.test.ext.junit.runners.AndroidJUnit4;
import org.junit.Test;

public class SampleTest {

    @Test
    public void startSleepTest() {
        onView(withId(R.id.start_stop)).perform(click());
        onView(withId(R.id.start_stop)).check(matches(isDisplayed()));
    }

    @Test
    public void deleteAllSleepsTest() throws InterruptedException {
        onView(withContentDescription("More options")).perform(click());
        onView(withText("Delete all sleeps")).perform(click());
        onView(withText("YES")).perform(click());
    }

    private void helper() {
        // not annotated, never extracted
    }
}
`

func TestSplitTestMethods(t *testing.T) {
	methods := SplitTestMethods(sampleClass)
	require.Len(t, methods, 2)

	assert.Equal(t, "startSleepTest", methods[0].Name)
	assert.Contains(t, methods[0].Source, "public void startSleepTest()")
	assert.Contains(t, methods[0].Source, "check(matches(isDisplayed()))")
	assert.NotContains(t, methods[0].Source, "deleteAllSleeps")

	assert.Equal(t, "deleteAllSleepsTest", methods[1].Name)
	assert.NotContains(t, methods[1].Source, "helper")
}

func TestSplitTestMethodsKotlin(t *testing.T) {
	source := `class SampleTest {
    @Test
    fun openSettings() {
        onView(withText("Settings")).perform(click());
    }
}`
	methods := SplitTestMethods(source)
	require.Len(t, methods, 1)
	assert.Equal(t, "openSettings", methods[0].Name)
}

func TestSplitTestMethodsInterveningAnnotation(t *testing.T) {
	source := `class SampleTest {
    @Test
    @LargeTest
    public void slowPathTest() {
        onView(withId(R.id.go)).perform(click());
    }
}`
	methods := SplitTestMethods(source)
	require.Len(t, methods, 1)
	assert.Equal(t, "slowPathTest", methods[0].Name)
}

func TestLayoutPathsAndListing(t *testing.T) {
	root := t.TempDir()
	data := t.TempDir()
	l := Layout{Root: root, Data: data}

	for _, app := range []string{"com.example.b", "com.example.a"} {
		require.NoError(t, os.MkdirAll(l.InputDir(app), 0o755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-input-dir"), 0o755))

	apps, err := l.ListApps()
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.a", "com.example.b"}, apps)

	assert.Equal(t,
		filepath.Join(data, "capabilities", "com.example.a_capabilities.json"),
		l.CapabilitiesPath("com.example.a"))
	assert.Equal(t,
		filepath.Join(data, "intent", "intent_list_full.json"),
		l.IntentListPath())
}

func TestInputSourcesFiltersByExtension(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	app := "com.example.a"
	require.NoError(t, os.MkdirAll(l.InputDir(app), 0o755))
	for _, name := range []string{"BTest.java", "ATest.kt", "notes.txt", "app_introduction.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(l.InputDir(app), name), []byte("x"), 0o644))
	}

	files, err := l.InputSources(app)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "ATest.kt", filepath.Base(files[0]))
	assert.Equal(t, "BTest.java", filepath.Base(files[1]))
}

func TestAppIntroduction(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	app := "com.example.a"
	require.NoError(t, os.MkdirAll(l.InputDir(app), 0o755))

	_, ok := l.AppIntroduction(app)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(
		filepath.Join(l.InputDir(app), "app_introduction.txt"),
		[]byte("A sleep tracking app.\n"), 0o644))
	intro, ok := l.AppIntroduction(app)
	require.True(t, ok)
	assert.Equal(t, "A sleep tracking app.", intro)
}

func TestWriteExtractedAndJSONRoundTrip(t *testing.T) {
	l := Layout{Root: t.TempDir(), Data: t.TempDir()}
	app := "com.example.a"

	require.NoError(t, l.WriteExtracted(app, []ExtractedMethod{
		{Name: "startSleepTest", Source: "public void startSleepTest() {\n}"},
	}))
	data, err := os.ReadFile(filepath.Join(l.ExtractedDir(app), "startSleepTest.java"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "startSleepTest")

	type doc struct {
		Name string `json:"name"`
	}
	path := l.SkillsPath(app)
	require.NoError(t, WriteJSON(path, []doc{{Name: "startSleep"}}))

	var got []doc
	require.NoError(t, ReadJSON(path, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "startSleep", got[0].Name)
}
