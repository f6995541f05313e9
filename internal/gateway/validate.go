package gateway

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const requestSchemaJSON = `{
	"type": "object",
	"required": ["x402Version", "paymentHeader", "paymentRequirements"],
	"properties": {
		"x402Version": {"type": "integer"},
		"paymentHeader": {},
		"paymentRequirements": {
			"type": "object",
			"required": ["scheme", "network", "asset", "payTo", "maxAmountRequired", "resource"],
			"properties": {
				"scheme": {"type": "string"},
				"network": {"type": "string"},
				"asset": {"type": "string"},
				"payTo": {"type": "string"},
				"maxAmountRequired": {"type": "string"},
				"resource": {"type": "string"},
				"maxTimeoutSeconds": {"type": "integer"},
				"description": {"type": "string"}
			}
		},
		"agentId": {"type": "string"}
	}
}`

var requestSchema = gojsonschema.NewStringLoader(requestSchemaJSON)

// ValidateRequestBody checks body against the shared VerifyRequest/
// SettleRequest shape, returning the list of validation error messages
// (empty if valid).
func ValidateRequestBody(body []byte) ([]string, error) {
	result, err := gojsonschema.Validate(requestSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validate request body: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		messages = append(messages, e.String())
	}
	return messages, nil
}
