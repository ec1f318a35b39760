package blocks

import (
	"context"
	"fmt"

	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/internal/outbound"
	"github.com/formflow/formflow/pkg/schema"
)

// ExternalSendRunner dispatches an HTTP request to an external endpoint.
// Preview runs build the request but never reach the network. Response
// fields map back into the data bag through jq expressions.
type ExternalSendRunner struct {
	base
	dispatcher outbound.Dispatcher
	jq         *expressions.GoJQEngine
}

// NewExternalSendRunner creates an external_send runner.
func NewExternalSendRunner(b base, dispatcher outbound.Dispatcher, jq *expressions.GoJQEngine) *ExternalSendRunner {
	return &ExternalSendRunner{base: b, dispatcher: dispatcher, jq: jq}
}

func (r *ExternalSendRunner) Type() schema.BlockType { return schema.BlockTypeExternalSend }

func (r *ExternalSendRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.ExternalSendConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.URL == "" {
		return schema.Fail("external_send block requires a url")
	}

	if _, err := r.resolveTenant(ctx, bc); err != nil {
		return schema.FailErr(err)
	}

	body := make(map[string]any, len(cfg.BodyMap))
	for field, ref := range cfg.BodyMap {
		body[field] = bc.Resolve(ref)
	}

	req := &outbound.Request{
		URL:     asString(expressions.Interpolate(cfg.URL, bc.Data)),
		Method:  cfg.Method,
		Headers: cfg.Headers,
		Body:    body,
	}

	if bc.Preview() {
		result := schema.OK(nil)
		result.Output = map[string]any{
			"url":    req.URL,
			"method": req.Method,
			"body":   Redact(body),
		}
		return result
	}

	r.logger.Info("external send",
		"run_id", bc.RunID,
		"block_id", block.ID,
		"url", req.URL,
		"body", Redact(body))

	resp, err := r.dispatcher.Send(ctx, req)
	if err != nil {
		return schema.FailErr(err)
	}
	if resp.StatusCode >= 400 {
		return schema.Fail(fmt.Sprintf("external endpoint returned status %d", resp.StatusCode))
	}

	delta := map[string]any{}
	if cfg.OutputKey != "" {
		delta[cfg.OutputKey] = resp.Body
	}
	for key, expression := range cfg.ResponseMap {
		value, err := r.jq.Evaluate(ctx, expression, responseEnv(resp))
		if err != nil {
			return schema.FailErr(err)
		}
		delta[key] = value
	}

	result := schema.OK(delta)
	result.Output = resp.Body
	return result
}

// responseEnv shapes the dispatch result for jq: object bodies are exposed
// directly with status/headers alongside; anything else sits under "body".
func responseEnv(resp *outbound.Response) map[string]any {
	env := map[string]any{}
	if bodyMap, ok := resp.Body.(map[string]any); ok {
		for k, v := range bodyMap {
			env[k] = v
		}
	} else if resp.Body != nil {
		env["body"] = resp.Body
	}
	env["status"] = resp.StatusCode
	return env
}
