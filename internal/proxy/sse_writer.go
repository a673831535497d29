package proxy

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mrorigo/stream-healer/healer"
	"github.com/mrorigo/stream-healer/internal/log"
)

// doneSentinel is the literal payload OpenAI-compatible streams send
// to signal end-of-stream; it carries no JSON of its own.
const doneSentinel = "[DONE]"

// WriteHealedSSEStream re-emits upstream's Server-Sent Event stream,
// routing each chunk's delta content through heal (when non-nil)
// before writing it to the client, and appending one extra chunk
// carrying heal's synthesized tail just before the terminal [DONE].
func WriteHealedSSEStream(c *gin.Context, upstream Stream[*StreamEvent], heal *healer.Healer) {
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Writer.CloseNotify()

	var lastEnvelope []byte

	for {
		select {
		case <-clientGone:
			log.Warn(ctx, "client disconnected, stopping stream")
			return
		case <-ctx.Done():
			log.Warn(ctx, "context done, stopping stream")
			return
		default:
		}

		if !upstream.Next() {
			break
		}

		event := upstream.Current()
		trimmed := strings.TrimSpace(string(event.Data))

		if trimmed == doneSentinel {
			break
		}

		lastEnvelope = writeHealedEvent(c, event, heal)
	}

	if err := upstream.Err(); err != nil {
		log.Error(ctx, "error reading upstream stream", log.Cause(err))
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
	}

	if heal != nil {
		if tail := heal.Finish(); tail != "" {
			c.SSEvent("", synthesizeTailChunk(lastEnvelope, tail))
			c.Writer.Flush()
		}
	}

	c.SSEvent("", doneSentinel)
	c.Writer.Flush()
}

// writeHealedEvent processes and writes a single upstream event,
// returning its (possibly rewritten) payload so the tail synthesizer
// can reuse the envelope shape.
func writeHealedEvent(c *gin.Context, event *StreamEvent, heal *healer.Healer) []byte {
	data := event.Data

	if heal != nil {
		content := gjson.GetBytes(data, "choices.0.delta.content")
		if content.Exists() {
			processed := heal.Process(content.String())

			if rewritten, err := sjson.SetBytes(data, "choices.0.delta.content", processed); err == nil {
				data = rewritten
			}
		}
	}

	c.SSEvent(event.Type, string(data))
	c.Writer.Flush()

	return data
}

// synthesizeTailChunk builds one more OpenAI-style stream chunk
// carrying tail as its delta content, reusing id/object/model/created
// from the last real chunk seen when available.
func synthesizeTailChunk(lastEnvelope []byte, tail string) string {
	envelope := lastEnvelope
	if len(envelope) == 0 {
		envelope = []byte(`{"choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
	}

	envelope, err := sjson.SetBytes(envelope, "choices.0.delta", map[string]string{"content": tail})
	if err != nil {
		return tail
	}

	envelope, err = sjson.DeleteBytes(envelope, "choices.0.finish_reason")
	if err != nil {
		return string(envelope)
	}

	return string(envelope)
}
