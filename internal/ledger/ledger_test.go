package ledger

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestCanonicalSubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sci", "Sci"},
		{"SCI", "Sci"},
		{"  math ", "Math"},
		{"eNGLISH", "English"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CanonicalSubject(tc.in); got != tc.want {
			t.Errorf("CanonicalSubject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddTask_AutoCreatesSubject(t *testing.T) {
	l := New()
	l.AddTask("sci", "pt", "Finish the presentation")

	out := l.RenderSubjects()
	if !strings.Contains(out, "Sci:") {
		t.Errorf("RenderSubjects missing subject line: %q", out)
	}
	if !strings.Contains(out, "PT - Finish the presentation") {
		t.Errorf("RenderSubjects missing entry: %q", out)
	}
}

func TestAddTask_SameSubjectDifferentCase(t *testing.T) {
	l := New()
	l.AddTask("sci", "pt", "first")
	l.AddTask("SCI", "ass", "second")

	out := l.RenderSubjects()
	if strings.Count(out, "Sci:") != 1 {
		t.Errorf("expected one Sci subject, got: %q", out)
	}
	if !strings.Contains(out, "1. PT - first") || !strings.Contains(out, "2. ASS - second") {
		t.Errorf("entries not in insertion order: %q", out)
	}
}

func TestRenderSubjects_Empty(t *testing.T) {
	l := New()
	if got := l.RenderSubjects(); got != "📚 No tasks added yet." {
		t.Errorf("RenderSubjects = %q", got)
	}
}

func TestRenderSubjects_InsertionOrder(t *testing.T) {
	l := New()
	l.AddTask("zoo", "pt", "a")
	l.AddTask("art", "ww", "b")
	l.AddTask("zoo", "rem", "c")

	out := l.RenderSubjects()
	zoo := strings.Index(out, "Zoo:")
	art := strings.Index(out, "Art:")
	if zoo < 0 || art < 0 || zoo > art {
		t.Errorf("subjects not in insertion order: %q", out)
	}
}

func TestClearSubject_Idempotent(t *testing.T) {
	l := New()
	l.AddTask("sci", "pt", "task")

	if !l.ClearSubject("SCI") {
		t.Fatal("first ClearSubject should report removal")
	}
	if l.ClearSubject("sci") {
		t.Error("second ClearSubject should report nothing to clear")
	}
	if got := l.RenderSubjects(); got != "📚 No tasks added yet." {
		t.Errorf("ledger not empty after clear: %q", got)
	}
}

func TestClearAll(t *testing.T) {
	l := New()
	l.AddTask("sci", "pt", "task")
	l.AddChore("wash the board")

	l.ClearAll()

	if got := l.RenderSubjects(); got != "📚 No tasks added yet." {
		t.Errorf("subjects not cleared: %q", got)
	}
	if got := l.RenderChores(); got != "🧹 No chores added." {
		t.Errorf("chores not cleared: %q", got)
	}
}

func TestChores_Listing(t *testing.T) {
	l := New()
	l.AddChore("wash the board")
	l.AddChore("stack the chairs")

	out := l.RenderChores()
	if !strings.Contains(out, "1. wash the board") || !strings.Contains(out, "2. stack the chairs") {
		t.Errorf("RenderChores = %q", out)
	}
}

func TestClearChores_DescendingRemoval(t *testing.T) {
	// Removing {2,1} from a 3-item list must remove the same two items
	// regardless of the order the indices are listed in.
	for _, indices := range [][]int{{2, 1}, {1, 2}} {
		l := New()
		l.AddChore("one")
		l.AddChore("two")
		l.AddChore("three")

		if removed := l.ClearChores(indices); removed != 2 {
			t.Errorf("ClearChores(%v) removed %d, want 2", indices, removed)
		}
		got := l.Chores()
		if len(got) != 1 || got[0] != "three" {
			t.Errorf("ClearChores(%v) left %v, want [three]", indices, got)
		}
	}
}

func TestClearChores_OutOfRangeIgnored(t *testing.T) {
	l := New()
	l.AddChore("only")

	if removed := l.ClearChores([]int{0, -3, 5, 99}); removed != 0 {
		t.Errorf("out-of-range indices removed %d chores", removed)
	}
	if got := l.Chores(); len(got) != 1 {
		t.Errorf("chores mutated by out-of-range clear: %v", got)
	}
}

func TestClearChores_DuplicateIndices(t *testing.T) {
	l := New()
	l.AddChore("one")
	l.AddChore("two")

	if removed := l.ClearChores([]int{1, 1, 1}); removed != 1 {
		t.Errorf("duplicate index removed %d chores, want 1", removed)
	}
	got := l.Chores()
	if len(got) != 1 || got[0] != "two" {
		t.Errorf("ClearChores left %v, want [two]", got)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	l := New()
	l.AddTask("sci", "pt", "Finish the presentation")
	l.AddTask("sci", "ass", "worksheet  with  spaces")
	l.AddTask("math", "ww", "chapter 3")

	token, err := l.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	fresh := New()
	if err := fresh.Import(token); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if got, want := fresh.RenderSubjects(), l.RenderSubjects(); got != want {
		t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, want)
	}

	// The re-export of the imported ledger must be identical.
	token2, err := fresh.Export()
	if err != nil {
		t.Fatalf("re-Export: %v", err)
	}
	if token2 != token {
		t.Error("re-exported token differs from original")
	}
}

func TestImport_MergeExtendsExistingSubjects(t *testing.T) {
	src := New()
	src.AddTask("sci", "pt", "imported task")
	token, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := New()
	dst.AddTask("sci", "ass", "existing task")
	dst.AddTask("art", "ww", "untouched")
	if err := dst.Import(token); err != nil {
		t.Fatalf("Import: %v", err)
	}

	out := dst.RenderSubjects()
	if !strings.Contains(out, "1. ASS - existing task") {
		t.Errorf("existing entry lost in merge: %q", out)
	}
	if !strings.Contains(out, "2. PT - imported task") {
		t.Errorf("imported entry not appended: %q", out)
	}
	if !strings.Contains(out, "Art:") {
		t.Errorf("unrelated subject lost in merge: %q", out)
	}
}

func TestImport_BadTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", "bm90IGpzb24="},                     // "not json"
		{"wrong shape", "WyJhIiwiYiJdMg=="},              // invalid trailing data
		{"json array", "W3siZ2VuZXJhdGVkIjoxfV0="},       // [{"generated":1}]
		{"wrong version", "eyJ2ZXJzaW9uIjo5OX0="},        // {"version":99}
		{"empty subject", "eyJ2ZXJzaW9uIjoxLCJzdWJqZWN0cyI6W3sic3ViamVjdCI6IiJ9XX0="}, // {"version":1,"subjects":[{"subject":""}]}
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			l.AddTask("sci", "pt", "keep me")

			err := l.Import(tc.token)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("Import(%q) error = %v, want ErrDecode", tc.token, err)
			}
			if !strings.Contains(l.RenderSubjects(), "keep me") {
				t.Error("ledger mutated by failed import")
			}
		})
	}
}

func TestLedger_ConcurrentMutation(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.AddTask("sci", "pt", "task")
				l.AddChore("chore")
				l.RenderSubjects()
				l.RenderChores()
			}
		}()
	}
	wg.Wait()

	if got := len(l.Chores()); got != 400 {
		t.Errorf("lost chore updates: got %d, want 400", got)
	}
}
