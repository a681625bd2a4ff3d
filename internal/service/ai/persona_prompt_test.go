package ai

import (
	"strings"
	"testing"

	"github.com/zhouzirui/callsim/backend/internal/model/persona"
)

func TestBuildSystemPrompt(t *testing.T) {
	store := persona.NewMemoryStore(persona.Seed())
	marcus, ok := store.FindByID("marcus")
	if !ok {
		t.Fatal("marcus seed missing")
	}

	prompt := BuildSystemPrompt(marcus)

	for _, want := range []string{
		"You are " + marcus.Name,
		marcus.CurrentProvider,
		"YOUR PRIMARY OBJECTION",
		marcus.MainObjection,
		"you are very resistant and hard to win over",
		"Stay fully in character as " + marcus.Name,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	for _, obj := range marcus.SecondaryObjections {
		if !strings.Contains(prompt, obj) {
			t.Fatalf("prompt missing secondary objection %q", obj)
		}
	}
	if strings.Contains(prompt, "%!") {
		t.Fatalf("prompt contains formatting artefacts:\n%s", prompt)
	}
}

func TestBuildTurnPrompt(t *testing.T) {
	p := persona.Persona{ID: "x", Name: "X", Difficulty: persona.Easy}

	prompt := BuildTurnPrompt(p, 4)
	if !strings.HasSuffix(prompt, "CURRENT TURN NUMBER: 4") {
		t.Fatalf("turn number not appended: %q", prompt[len(prompt)-40:])
	}
	if !strings.Contains(prompt, "you are open-minded but still need convincing") {
		t.Fatal("easy persona should get the open-minded description")
	}
}

func TestBuildOpeningPromptUsesGreeting(t *testing.T) {
	robert, _ := persona.NewMemoryStore(persona.Seed()).FindByID("robert")

	prompt := BuildOpeningPrompt(robert)
	if !strings.HasPrefix(prompt, BuildSystemPrompt(robert)) {
		t.Fatal("opening prompt must extend the persona instruction")
	}
	if !strings.Contains(prompt, robert.OpeningLine) {
		t.Fatalf("opening prompt missing greeting %q", robert.OpeningLine)
	}

	silent := robert
	silent.OpeningLine = "  "
	if got := BuildOpeningPrompt(silent); got != BuildSystemPrompt(silent) {
		t.Fatal("blank greeting must leave the instruction unchanged")
	}
}
