package agentloop

import "testing"

func TestDetectDirectCommand_RecognizesWhitelistedPrefixes(t *testing.T) {
	cases := []string{"git status", "npm install", "ls -la", "pwd"}
	for _, in := range cases {
		cmd, ok := DetectDirectCommand(in)
		if !ok || cmd != in {
			t.Errorf("DetectDirectCommand(%q) = (%q, %v), want (%q, true)", in, cmd, ok, in)
		}
	}
}

func TestDetectDirectCommand_RecognizesBangAndRunEscapes(t *testing.T) {
	if cmd, ok := DetectDirectCommand("!echo hi"); !ok || cmd != "echo hi" {
		t.Errorf("bang escape: got (%q, %v)", cmd, ok)
	}
	if cmd, ok := DetectDirectCommand("/run echo hi"); !ok || cmd != "echo hi" {
		t.Errorf("/run escape: got (%q, %v)", cmd, ok)
	}
}

func TestDetectDirectCommand_RejectsBlacklistedAndNonCommandInput(t *testing.T) {
	cases := []string{"halt", "reboot now", "yes please", "please fix the bug in login.go", ""}
	for _, in := range cases {
		if _, ok := DetectDirectCommand(in); ok {
			t.Errorf("DetectDirectCommand(%q) should not be a direct command", in)
		}
	}
}
