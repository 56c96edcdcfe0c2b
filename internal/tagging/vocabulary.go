package tagging

import "github.com/John-Robertt/subtagger/internal/probe"

// Tag vocabulary, v1. Changing a spelling here changes every name prefix
// produced afterwards, and old prefixes will no longer be recognized.
const (
	TagChat   = "Chat"
	TagGemini = "Gemini"
	TagClaude = "Claude"

	TagNetflix          = "NF"
	TagNetflixOriginals = "NF(O)"
	TagYouTube          = "YT"
	TagYouTubePremium   = "YTP"
	TagDisney           = "DP"
	TagMax              = "Max"
)

var aiProviderTags = map[string]string{
	probe.ServiceOpenAI: TagChat,
	probe.ServiceGemini: TagGemini,
	probe.ServiceClaude: TagClaude,
}

// DefaultAIProviders is used when no priority list is configured.
var DefaultAIProviders = []string{probe.ServiceOpenAI}

// KnownAIProvider reports whether the provider has a tag in the vocabulary.
func KnownAIProvider(name string) bool {
	_, ok := aiProviderTags[name]
	return ok
}

// AIProviders lists every provider the vocabulary can tag.
func AIProviders() []string {
	return []string{probe.ServiceOpenAI, probe.ServiceGemini, probe.ServiceClaude}
}

var streamingServices = []string{
	probe.ServiceNetflix,
	probe.ServiceYouTube,
	probe.ServiceDisney,
	probe.ServiceMax,
}
