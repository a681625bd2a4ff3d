package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/callsim/backend/internal/model/persona"
)

// OpeningInstruction stands in for the history on the opening turn, when the call has just connected.
const OpeningInstruction = "The phone is ringing. Answer it."

var behaviourRules = []string{
	"Stay fully in character as %[1]s at all times. Never break character.",
	"You are NOT helpful. You did not ask for this call. You are skeptical by default.",
	`Open with a short, natural greeting like "Hello?" or "Yeah, who's this?" and never volunteer information.`,
	"Use your PRIMARY OBJECTION early in the conversation (turn 1-2).",
	"Sprinkle SECONDARY OBJECTIONS naturally across later turns.",
	"If the advisor handles an objection well, soften slightly but don't cave immediately.",
	"If the advisor handles an objection poorly, get more resistant or dismissive.",
	"Keep responses SHORT, 1 to 3 sentences max. Real people don't give speeches on cold calls.",
	"Never offer to schedule a meeting unless the advisor earns it with strong rapport AND a clear value proposition.",
	`If the advisor is pushy or generic, shut down: "I gotta go" or "Not interested, thanks."`,
	`Use filler words occasionally ("uh", "look", "yeah") to sound natural.`,
	"Mirror the difficulty level: %[2]s means %[3]s.",
}

// BuildSystemPrompt renders the cold-call prospect instruction for a persona.
func BuildSystemPrompt(p persona.Persona) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a %d-year-old %s.\n\n", p.Name, p.Age, p.Occupation)

	b.WriteString("BACKGROUND:\n")
	fmt.Fprintf(&b, "- Portfolio: %s with %s\n", p.PortfolioValue, p.CurrentProvider)
	b.WriteString("- You are receiving an unsolicited cold call from a financial advisor\n")
	fmt.Fprintf(&b, "- Difficulty level: %s\n", difficultyOrDefault(p.Difficulty))
	if p.Personality != "" {
		fmt.Fprintf(&b, "- Personality: %s\n", p.Personality)
	}

	fmt.Fprintf(&b, "\nYOUR PRIMARY OBJECTION: %q\n", p.MainObjection)

	if len(p.SecondaryObjections) > 0 {
		b.WriteString("\nYOUR SECONDARY OBJECTIONS (use these throughout the conversation):\n")
		for _, obj := range p.SecondaryObjections {
			fmt.Fprintf(&b, "  - %q\n", obj)
		}
	}

	b.WriteString("\nBEHAVIOR RULES:\n")
	difficulty := difficultyOrDefault(p.Difficulty)
	for i, rule := range behaviourRules {
		line := rule
		if strings.Contains(rule, "%[") {
			line = fmt.Sprintf(rule, p.Name, difficulty, describeDifficulty(difficulty))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	b.WriteString(`
TURN AWARENESS:
- Turns 1-2: Be cold/neutral. Use your primary objection.
- Turns 3-4: If the advisor is good, warm up slightly. If not, escalate resistance.
- Turn 5-6: Either agree to a meeting (if earned) or end the call naturally.
- Never let the conversation drag beyond 6 turns. Wrap it up naturally.

Remember: You are a real person who got an unexpected call. Act like it.`)

	return b.String()
}

// BuildOpeningPrompt is the instruction for the persona's first line, before the operator has said anything.
func BuildOpeningPrompt(p persona.Persona) string {
	prompt := BuildSystemPrompt(p)
	if line := strings.TrimSpace(p.OpeningLine); line != "" {
		prompt += fmt.Sprintf("\n\nYOU JUST PICKED UP THE PHONE. Answer the way you usually do, e.g. %q", line)
	}
	return prompt
}

// BuildTurnPrompt appends turn awareness to the persona instruction.
func BuildTurnPrompt(p persona.Persona, turnNumber int) string {
	return fmt.Sprintf("%s\n\nCURRENT TURN NUMBER: %d", BuildSystemPrompt(p), turnNumber)
}

func difficultyOrDefault(d persona.Difficulty) persona.Difficulty {
	if d == "" {
		return persona.Medium
	}
	return d
}

func describeDifficulty(d persona.Difficulty) string {
	switch d {
	case persona.Hard:
		return "you are very resistant and hard to win over"
	case persona.Medium:
		return "you are moderately guarded but can be persuaded with good technique"
	default:
		return "you are open-minded but still need convincing"
	}
}
