package usage

import "time"

// UsageData is the structure stored in usage.json.
type UsageData struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds counters broken down by generator and conversation.
type AggregatedStats struct {
	Total          Counts            `json:"total"`
	ByGenerator    map[string]Counts `json:"by_generator"`
	ByConversation map[string]Counts `json:"by_conversation"`
	// ByFallback counts template fallbacks per reason.
	ByFallback map[string]int64 `json:"by_fallback"`
}

// Counts holds call and token sums.
type Counts struct {
	Calls        int64 `json:"calls"`
	Fallbacks    int64 `json:"fallbacks"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (c *Counts) addCall(fellBack bool) {
	c.Calls++
	if fellBack {
		c.Fallbacks++
	}
}

func (c *Counts) addTokens(input, output int) {
	c.InputTokens += int64(input)
	c.OutputTokens += int64(output)
}

// TotalTokens is input plus output tokens.
func (c Counts) TotalTokens() int64 { return c.InputTokens + c.OutputTokens }
