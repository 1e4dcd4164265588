// Package tokens provides cheap local token estimates. Both backends use
// the cl100k_base BPE as a lower-bound estimator when the model's own
// encoding is unknown.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once    sync.Once
	encoder *tiktoken.Tiktoken
)

// Counter estimates token counts for one model.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// ForModel returns a counter using the model's declared encoding when
// tiktoken knows it, falling back to cl100k_base.
func ForModel(model string) *Counter {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &Counter{enc: enc}
	}
	return &Counter{enc: base()}
}

// Base returns the cl100k_base counter.
func Base() *Counter {
	return &Counter{enc: base()}
}

func base() *tiktoken.Tiktoken {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// The encoding ships with the library; failing to load it
			// means a broken build, but estimation degrades instead of
			// crashing the bot.
			slog.Error("failed to load cl100k_base encoding", "error", err)
			return
		}
		encoder = enc
	})
	return encoder
}

// Count returns the token count of a text. With no usable encoder it
// approximates by word count.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		return len(strings.Fields(text))
	}
	return len(c.enc.Encode(text, nil, nil))
}
