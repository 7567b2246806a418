package anthropic

// SystemPrompt wraps the fixed system instruction in a single block with a
// five-minute cache breakpoint. Every task in a batch shares it.
func SystemPrompt(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
