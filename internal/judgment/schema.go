package judgment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JudgeJSON calls the capability in structured mode and decodes the output
// into out. When decoding or the optional validate hook fails, the prompt
// is re-sent with the validation error appended, up to maxRetries extra
// attempts. Unparsable output after retries surfaces as a *SchemaError;
// capability transport failures pass through unchanged so callers can fall
// back immediately instead of retrying a dead service.
func JudgeJSON(ctx context.Context, client Client, systemInstruction, prompt string, maxRetries int, out any, validate func() error) error {
	attempts := 0
	currentPrompt := prompt
	var lastErr error

	for attempts <= maxRetries {
		attempts++

		raw, err := client.Judge(ctx, systemInstruction, currentPrompt, true)
		if err != nil {
			return err
		}

		lastErr = decodeStrict(raw, out)
		if lastErr == nil && validate != nil {
			lastErr = validate()
		}
		if lastErr == nil {
			return nil
		}

		currentPrompt = fmt.Sprintf(
			"%s\n\nYour previous response was invalid: %v\nReturn ONLY valid JSON matching the required schema.",
			prompt, lastErr,
		)
	}

	return &SchemaError{Attempts: attempts, Err: lastErr}
}

// decodeStrict parses raw JSON into out, tolerating markdown code fences
// the capability sometimes wraps around structured output.
func decodeStrict(raw string, out any) error {
	trimmed := stripFences(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	b := []byte(s)
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("```")) {
		if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
			b = b[idx+1:]
		}
		b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	}
	return string(bytes.TrimSpace(b))
}
