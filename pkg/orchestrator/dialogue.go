package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// emotionMarker matches a structured tag the system prompt asks the model
// to prefix its reply with, e.g. "[EMOTION:Encouragement] Great job!".
var emotionMarker = regexp.MustCompile(`(?i)^\s*\[emotion:\s*([a-zàâäéèêëïîôöùûüç_\-]+)\s*\]\s*`)

// emotionAliases maps the loose vocabulary a model might emit for the
// marker (and the lexical fallback) onto the closed label set of spec §3.
var emotionAliases = map[string]Emotion{
	"neutre":                EmotionNeutre,
	"neutral":               EmotionNeutre,
	"encouragement":         EmotionEncouragement,
	"empathie":              EmotionEmpathie,
	"empathy":               EmotionEmpathie,
	"enthousiasme_modere":   EmotionEnthousiasmeModere,
	"enthousiasme-modere":   EmotionEnthousiasmeModere,
	"enthusiasm":            EmotionEnthousiasmeModere,
	"curiosite":             EmotionCuriosite,
	"curiosity":             EmotionCuriosite,
	"reflexion":             EmotionReflexion,
	"reflection":            EmotionReflexion,
}

// lexicalHints is the ordered fallback used when the model omits the
// marker: the first matching hint set wins.
var lexicalHints = []struct {
	emotion Emotion
	words   []string
}{
	{EmotionEncouragement, []string{"bravo", "excellent", "great job", "well done", "continue comme"}},
	{EmotionEmpathie, []string{"je comprends", "i understand", "désolé", "sorry", "ça arrive"}},
	{EmotionEnthousiasmeModere, []string{"super", "génial", "awesome", "j'adore"}},
	{EmotionCuriosite, []string{"pourquoi", "why", "raconte-moi", "tell me more", "comment"}},
	{EmotionReflexion, []string{"réfléchiss", "let's think", "voyons voir", "hmm"}},
}

// TagEmotion extracts an Emotion from a raw LLM reply. It returns the
// reply text with any structured marker stripped, plus the resolved
// Emotion (defaulting to EmotionNeutre when nothing matches). This is the
// spec §3/§4.4 emotion-tagging step.
func TagEmotion(reply string) (text string, emotion Emotion) {
	if m := emotionMarker.FindStringSubmatch(reply); m != nil {
		text = emotionMarker.ReplaceAllString(reply, "")
		key := strings.ToLower(strings.ReplaceAll(m[1], " ", "_"))
		if e, ok := emotionAliases[key]; ok {
			return strings.TrimSpace(text), e
		}
		return strings.TrimSpace(text), EmotionNeutre
	}

	lower := strings.ToLower(reply)
	for _, hint := range lexicalHints {
		for _, w := range hint.words {
			if strings.Contains(lower, w) {
				return reply, hint.emotion
			}
		}
	}
	return reply, EmotionNeutre
}

// fallbackUtterances carries one canned phrase per Emotion per Language
// (spec §4.4: "six emotion-tagged canned phrases"), each already wrapped in
// the same [EMOTION:...] marker TagEmotion parses off a real LLM reply.
// Tagging these explicitly, rather than leaving TagEmotion to infer the
// emotion lexically, matters because a degraded turn's fallback text often
// contains apology words ("désolé", "sorry") that would otherwise match the
// Empathie lexical hint and mistag a neutral degraded turn as empathetic.
var fallbackUtterances = map[Language]map[Emotion]string{
	LanguageFr: {
		EmotionNeutre:             "[EMOTION:neutre] Désolé, je n'ai pas bien suivi. Peux-tu répéter ?",
		EmotionEncouragement:      "[EMOTION:encouragement] Pas de souci, on continue, tu t'en sors bien !",
		EmotionEmpathie:           "[EMOTION:empathie] Je comprends, prenons un instant et reprenons calmement.",
		EmotionEnthousiasmeModere: "[EMOTION:enthousiasme_modere] Allez, on reprend, ça va bien se passer !",
		EmotionCuriosite:          "[EMOTION:curiosite] Intéressant, peux-tu répéter autrement ?",
		EmotionReflexion:          "[EMOTION:reflexion] Hmm, laisse-moi reformuler la question.",
	},
	LanguageEn: {
		EmotionNeutre:             "[EMOTION:neutre] Sorry, I didn't quite catch that. Could you say it again?",
		EmotionEncouragement:      "[EMOTION:encouragement] No worries, you're doing great, let's keep going!",
		EmotionEmpathie:           "[EMOTION:empathie] I understand, let's take a moment and pick this back up.",
		EmotionEnthousiasmeModere: "[EMOTION:enthousiasme_modere] Alright, let's get back to it, you've got this!",
		EmotionCuriosite:          "[EMOTION:curiosite] Interesting, could you rephrase that for me?",
		EmotionReflexion:          "[EMOTION:reflexion] Hmm, let me rephrase the question.",
	},
}

// FallbackUtterance returns the canned reply used when response generation
// fails outright, matching the session's language and the emotion the turn
// would otherwise have carried (neutre when none applies). The returned
// text still carries its [EMOTION:...] marker, so it flows through the
// same TagEmotion step every real LLM reply does rather than bypassing it.
func FallbackUtterance(lang Language, emotion Emotion) string {
	byEmotion, ok := fallbackUtterances[lang]
	if !ok {
		byEmotion = fallbackUtterances[LanguageEn]
	}
	if u, ok := byEmotion[emotion]; ok {
		return u
	}
	return byEmotion[EmotionNeutre]
}

// BuildSystemPrompt renders an AgentProfile's template against the current
// scenario step, substituting {{var}} placeholders from ScenarioState
// (spec §4.4 step 1). Unknown placeholders are left as-is rather than
// erroring, since a missing variable usually just means the scenario
// hasn't reached the step that sets it yet.
func BuildSystemPrompt(profile AgentProfile, state ScenarioState) string {
	tmpl := profile.SystemPromptTmpl
	for k, v := range state.Variables {
		placeholder := "{{" + k + "}}"
		tmpl = strings.ReplaceAll(tmpl, placeholder, toDisplayString(v))
	}
	return tmpl
}

func toDisplayString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
