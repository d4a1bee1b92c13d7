package translate

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// estimateCodec is lazily initialized on first use; token estimation is a
// defensive fallback for when the upstream stream never carries a
// usageMetadata field, so a failure to build it is non-fatal.
var (
	estimateCodecOnce sync.Once
	estimateCodec     tokenizer.Codec
)

func getEstimateCodec() tokenizer.Codec {
	estimateCodecOnce.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.WithError(err).Warn("translate: failed to initialize token estimator codec")
			return
		}
		estimateCodec = codec
	})
	return estimateCodec
}

// estimateTokens returns a local token-count approximation for text. It is
// never authoritative: it exists only to populate usage data when the
// upstream stream omits usageMetadata entirely, per spec §4.3/§9.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	codec := getEstimateCodec()
	if codec == nil {
		return 0
	}
	count, err := codec.Count(text)
	if err != nil {
		log.WithError(err).Debug("translate: token estimation failed")
		return 0
	}
	return int64(count)
}
