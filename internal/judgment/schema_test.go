package judgment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	replies []string
	err     error
	prompts []string
}

func (c *scriptedClient) Judge(ctx context.Context, systemInstruction, prompt string, structured bool) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", &CapabilityError{Op: "judge", Err: errors.New("script exhausted")}
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

type target struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
}

func TestJudgeJSONFirstAttemptSucceeds(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"score": 42, "band": "LOW"}`}}

	var out target
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 2, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Score)
	assert.Equal(t, "LOW", out.Band)
	assert.Len(t, client.prompts, 1)
}

func TestJudgeJSONStripsMarkdownFences(t *testing.T) {
	client := &scriptedClient{replies: []string{"```json\n{\"score\": 7, \"band\": \"CLEAN\"}\n```"}}

	var out target
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 0, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, out.Score)
}

func TestJudgeJSONRetryCarriesFeedback(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"not valid json at all",
		`{"score": 10, "band": "CLEAN"}`,
	}}

	var out target
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 2, &out, nil)
	require.NoError(t, err)
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "Your previous response was invalid")
	assert.Contains(t, client.prompts[1], "prompt", "original prompt is preserved on retry")
}

func TestJudgeJSONValidateHookFeedback(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"score": 500, "band": "HIGH"}`,
		`{"score": 90, "band": "HIGH"}`,
	}}

	var out target
	validate := func() error {
		if out.Score > 100 {
			return fmt.Errorf("score %d above maximum", out.Score)
		}
		return nil
	}
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 2, &out, validate)
	require.NoError(t, err)
	assert.Equal(t, 90, out.Score)
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "score 500 above maximum")
}

func TestJudgeJSONExhaustedRetriesIsSchemaError(t *testing.T) {
	client := &scriptedClient{replies: []string{"junk", "junk", "junk"}}

	var out target
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 2, &out, nil)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Attempts)
	assert.False(t, IsCapabilityError(err), "schema failure is not a transport failure")
}

func TestJudgeJSONCapabilityErrorPassesThrough(t *testing.T) {
	capErr := &CapabilityError{Op: "judge", Err: errors.New("connection refused")}
	client := &scriptedClient{err: capErr}

	var out target
	err := JudgeJSON(context.Background(), client, "sys", "prompt", 5, &out, nil)
	require.Error(t, err)
	assert.True(t, IsCapabilityError(err))
	assert.Len(t, client.prompts, 1, "transport failures are never retried here")
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripFences(tc.in))
	}
}

func TestCapabilityErrorUnwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := &CapabilityError{Op: "judge", Err: inner}
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "judge")
}
