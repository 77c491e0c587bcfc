package deepgram

type deepgramVoice string

const (
	VoiceThalia   deepgramVoice = "aura-2-thalia-en"
	VoiceAsteria  deepgramVoice = "aura-2-asteria-en"
	VoiceOrion    deepgramVoice = "aura-2-orion-en"
	VoiceLuna     deepgramVoice = "aura-2-luna-en"
	VoiceArcas    deepgramVoice = "aura-2-arcas-en"
	VoiceApollo   deepgramVoice = "aura-2-apollo-en"
	VoiceAthena   deepgramVoice = "aura-2-athena-en"
	VoiceHermes   deepgramVoice = "aura-2-hermes-en"
	VoiceSelene   deepgramVoice = "aura-2-selene-en"
	VoiceOdysseus deepgramVoice = "aura-2-odysseus-en"
)

const defaultVoice = VoiceThalia

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceThalia,
		VoiceAsteria,
		VoiceOrion,
		VoiceLuna,
		VoiceArcas,
		VoiceApollo,
		VoiceAthena,
		VoiceHermes,
		VoiceSelene,
		VoiceOdysseus,
	}
}
