package proxy

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mrorigo/stream-healer/healer"
	"github.com/mrorigo/stream-healer/internal/log"
	"github.com/mrorigo/stream-healer/schema"
)

// Handlers serves the OpenAI-compatible chat-completions route,
// healing the model's generated content (and, when response_format
// carries a JSON Schema, filling in properties the model never
// emitted) before the response reaches the caller.
type Handlers struct {
	Upstream *Upstream
}

// NewHandlers constructs Handlers bound to upstream.
func NewHandlers(upstream *Upstream) *Handlers {
	return &Handlers{Upstream: upstream}
}

// ChatCompletion implements POST /v1/chat/completions.
func (h *Handlers) ChatCompletion(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if len(body) == 0 {
		abortWithError(c, http.StatusBadRequest, errors.New("request body is empty"))
		return
	}

	node, forwardBody, err := prepareSchema(body)
	if err != nil {
		log.Warn(ctx, "failed to clean response_format schema, forwarding as-is", log.Cause(err))
		forwardBody = body
	}

	healerFor := newHealerForRequest(body, node)

	if gjson.GetBytes(body, "stream").Bool() {
		h.serveStream(c, forwardBody, healerFor)
		return
	}

	h.serveNonStream(c, forwardBody, healerFor)
}

// newHealerForRequest returns the Healer this request's response
// should be routed through, or nil when response_format requests
// neither structural repair nor schema-guided injection.
func newHealerForRequest(body []byte, node *schema.Node) *healer.Healer {
	switch gjson.GetBytes(body, "response_format.type").String() {
	case "json_schema":
		return healer.New(node)
	case "json_object":
		return healer.New(nil)
	default:
		return nil
	}
}

// prepareSchema extracts response_format.json_schema.schema (if any),
// parses it for the healer's own use, and returns a copy of body with
// that schema's "default" entries stripped, ready to forward upstream.
func prepareSchema(body []byte) (*schema.Node, []byte, error) {
	raw := gjson.GetBytes(body, "response_format.json_schema.schema")
	if !raw.Exists() {
		return nil, body, nil
	}

	node, err := schema.Parse([]byte(raw.Raw))
	if err != nil {
		return nil, body, err
	}

	cleaned, err := cleanSchemaDefaults([]byte(raw.Raw))
	if err != nil {
		return node, body, err
	}

	forwardBody, err := sjson.SetRawBytes(body, "response_format.json_schema.schema", cleaned)
	if err != nil {
		return node, body, err
	}

	return node, forwardBody, nil
}

func (h *Handlers) serveNonStream(c *gin.Context, body []byte, heal *healer.Healer) {
	ctx := c.Request.Context()

	respBody, status, headers, err := h.Upstream.Do(ctx, c.Request, body)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	if heal == nil {
		c.Data(status, contentTypeOrDefault(headers), respBody)
		return
	}

	envelope := safeEnvelope(respBody)

	content := gjson.GetBytes(envelope, "choices.0.message.content").String()
	healed := heal.Process(content) + heal.Finish()

	healedBody, err := sjson.SetBytes(envelope, "choices.0.message.content", healed)
	if err != nil {
		log.Error(ctx, "failed to write healed content back into response", log.Cause(err))
		c.Data(status, "application/json", respBody)

		return
	}

	c.Data(status, "application/json", healedBody)
}

func (h *Handlers) serveStream(c *gin.Context, body []byte, heal *healer.Healer) {
	ctx := c.Request.Context()

	upstream, err := h.Upstream.DoStream(ctx, c.Request, body)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	defer func() {
		if cerr := upstream.Close(); cerr != nil {
			log.Warn(ctx, "failed to close upstream stream", log.Cause(cerr))
		}
	}()

	WriteHealedSSEStream(c, upstream, heal)
}

func contentTypeOrDefault(headers http.Header) string {
	if headers == nil {
		return "application/json"
	}

	if ct := headers.Get("Content-Type"); ct != "" {
		return ct
	}

	return "application/json"
}

func writeUpstreamError(c *gin.Context, err error) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		c.Data(upstreamErr.StatusCode, "application/json", upstreamErr.Body)
		return
	}

	abortWithError(c, http.StatusBadGateway, err)
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: Error{
			Type:    http.StatusText(status),
			Message: err.Error(),
		},
	})
}
