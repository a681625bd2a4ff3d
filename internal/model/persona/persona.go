package persona

// Difficulty 描述潜在客户的抗拒程度。
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Persona captures the prospect a caller practises against. Loaded once at start, never mutated.
type Persona struct {
	ID                  string     `json:"id" yaml:"id"`
	Name                string     `json:"name" yaml:"name"`
	Age                 int        `json:"age" yaml:"age"`
	Occupation          string     `json:"occupation" yaml:"occupation"`
	PortfolioValue      string     `json:"portfolioValue" yaml:"portfolio_value"`
	CurrentProvider     string     `json:"currentProvider" yaml:"current_provider"`
	Difficulty          Difficulty `json:"difficulty" yaml:"difficulty"`
	Personality         string     `json:"personality,omitempty" yaml:"personality"`
	MainObjection       string     `json:"mainObjection" yaml:"main_objection"`
	SecondaryObjections []string   `json:"secondaryObjections,omitempty" yaml:"secondary_objections"`
	VoiceID             string     `json:"voiceId" yaml:"voice_id"`
	OpeningLine         string     `json:"openingLine,omitempty" yaml:"opening_line"`
}

// Summary is the public view returned by the persona listing.
type Summary struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Age             int        `json:"age"`
	Occupation      string     `json:"occupation"`
	PortfolioValue  string     `json:"portfolioValue"`
	CurrentProvider string     `json:"currentProvider"`
	Difficulty      Difficulty `json:"difficulty"`
	VoiceID         string     `json:"voiceId"`
	MainObjection   string     `json:"mainObjection"`
}

// Summary strips behavioural parameters that only the prompt builder needs.
func (p Persona) Summary() Summary {
	return Summary{
		ID:              p.ID,
		Name:            p.Name,
		Age:             p.Age,
		Occupation:      p.Occupation,
		PortfolioValue:  p.PortfolioValue,
		CurrentProvider: p.CurrentProvider,
		Difficulty:      p.Difficulty,
		VoiceID:         p.VoiceID,
		MainObjection:   p.MainObjection,
	}
}

// Seed provides the default prospects used when no persona file is configured.
func Seed() []Persona {
	return []Persona{
		{
			ID:              "robert",
			Name:            "Robert Chen",
			Age:             58,
			Occupation:      "retired engineer",
			PortfolioValue:  "$1.2M",
			CurrentProvider: "Vanguard",
			Difficulty:      Easy,
			Personality:     "polite, analytical, likes numbers more than stories",
			MainObjection:   "I already manage my own investments with index funds.",
			SecondaryObjections: []string{
				"What do you charge? I don't like paying fees.",
				"How did you get my number?",
				"Send me something in writing first.",
			},
			VoiceID:     "pNInz6obpgDQGcFmaJgB",
			OpeningLine: "Hello, this is Robert.",
		},
		{
			ID:              "sarah",
			Name:            "Sarah Mitchell",
			Age:             44,
			Occupation:      "dental practice owner",
			PortfolioValue:  "$850K",
			CurrentProvider: "Edward Jones",
			Difficulty:      Medium,
			Personality:     "busy, direct, guarded with her time",
			MainObjection:   "I'm happy with my current advisor.",
			SecondaryObjections: []string{
				"I really don't have time for this right now.",
				"Every advisor says they're different.",
				"My husband handles most of this with me.",
			},
			VoiceID:     "EXAVITQu4vr4xnSDxMaL",
			OpeningLine: "Yeah, this is Sarah.",
		},
		{
			ID:              "marcus",
			Name:            "Marcus Johnson",
			Age:             51,
			Occupation:      "commercial real estate developer",
			PortfolioValue:  "$3.5M",
			CurrentProvider: "Morgan Stanley",
			Difficulty:      Hard,
			Personality:     "impatient, skeptical, tests people early",
			MainObjection:   "I get calls like this every week. Why should I give you thirty seconds?",
			SecondaryObjections: []string{
				"My guy at Morgan Stanley has beaten the market three years running.",
				"You sound young. How long have you been doing this?",
				"Just email me, I'll look at it when I look at it.",
			},
			VoiceID:     "VR6AewLTigWG4xSOukaG",
			OpeningLine: "Who's this?",
		},
	}
}
