package bitrix

import "fmt"

// Error is a structured failure reported by the Bitrix24 REST API:
// an {"error": code, "error_description": text} payload, or a non-2xx
// gateway response that carried no parseable payload.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("bitrix: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("bitrix: %s", e.Code)
}

// ShapeError reports a Bitrix response that was syntactically valid but
// did not match the structure this client expects. Retrying cannot fix a
// malformed response, so the classifier treats it as terminal. The raw
// payload is kept for diagnosis.
type ShapeError struct {
	Reason  string
	Payload string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("bitrix: unexpected response shape: %s", e.Reason)
}
