package agentloop

import "testing"

func TestRender_SubstitutesRecognizedPlaceholders(t *testing.T) {
	data := PlaceholderData{FileTree: "a.go\nb.go", GitChanges: "M a.go", StepsRemaining: 3}
	got := Render("tree:{{FILE_TREE}} changes:{{GIT_CHANGES}} left:{{STEPS_REMAINING}}", data)
	want := "tree:a.go\nb.go changes:M a.go left:3"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRender_LeavesUnrecognizedPlaceholderLiteral(t *testing.T) {
	got := Render("hello {{NOT_A_REAL_TOKEN}}", PlaceholderData{})
	want := "hello {{NOT_A_REAL_TOKEN}}"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}
