package speech

import "strings"

// volcengineVoiceAliases maps persona voice ids (ElevenLabs voice ids) to Volcengine speakers,
// so the same persona file works against either provider.
var volcengineVoiceAliases = map[string]string{
	"pninz6obpgdqgcfmajgb": "en_male_glen_emo_v2_mars_bigtts",
	"exavitqu4vr4xnsdxmal": "en_female_candice_emo_v2_mars_bigtts",
	"vr6aewltigwg4xsoukag": "en_male_corey_emo_v2_mars_bigtts",
	"en_default":           "en_female_amy_jupiter_bigtts",
}

// NormalizeVoiceAlias 返回 persona 声音对应的火山引擎 speaker，未知别名原样返回。
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := volcengineVoiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

func resolveTTSSpeakerCandidates(requested, fallback string) []string {
	var candidates []string

	add := func(s string) {
		s = NormalizeVoiceAlias(s)
		if s == "" {
			return
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}

	add(requested)
	add(fallback)

	return candidates
}
