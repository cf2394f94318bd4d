package response_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/errs"
	"chatbridge/internal/provider"
	"chatbridge/internal/response"
)

var (
	openAIPolicy = provider.Policy{ID: "openai", ResponseFormat: provider.FormatOpenAI, StreamFormat: provider.FormatOpenAI}
	coherePolicy = provider.Policy{ID: "cohere", ResponseFormat: provider.FormatCohere, StreamFormat: provider.FormatCohere}
)

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestText_OpenAI(t *testing.T) {
	r := response.NewResolver(nil, nil)

	got, err := r.Text(openAIPolicy, httpResponse(200, `{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Hello!", got)

	got, err = r.Text(openAIPolicy, httpResponse(200, `{"choices":[{"message":{"content":[{"type":"text","text":"a"},{"type":"image_url"},{"type":"text","text":"b"}]}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
}

func TestText_Cohere(t *testing.T) {
	r := response.NewResolver(nil, nil)

	tests := map[string]string{
		"object content": `{"message":{"content":{"text":"from object"}}}`,
		"string content": `{"message":{"content":"from string"}}`,
		"parts content":  `{"message":{"content":[{"type":"text","text":"from parts"},{"type":"text","text":"ignored"}]}}`,
		"top level text": `{"text":"from text","generation_id":"g1"}`,
	}
	want := map[string]string{
		"object content": "from object",
		"string content": "from string",
		"parts content":  "from parts",
		"top level text": "from text",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := r.Text(coherePolicy, httpResponse(200, body))
			require.NoError(t, err)
			assert.Equal(t, want[name], got)
		})
	}
}

func TestText_EmptyResponses(t *testing.T) {
	r := response.NewResolver(nil, nil)

	bodies := []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"role":"assistant"}}]}`,
		`{"choices":[{"message":{"content":null}}]}`,
		`{}`,
		`not json`,
	}

	for _, body := range bodies {
		got, err := r.Text(openAIPolicy, httpResponse(200, body))
		assert.Empty(t, got)

		var empty *errs.EmptyResponseError
		require.ErrorAs(t, err, &empty, "body %s", body)
		assert.Equal(t, "openai", empty.Provider)
	}

	_, err := r.Text(coherePolicy, httpResponse(200, `{"message":{"content":[]}}`))
	assert.True(t, errs.IsEmptyResponse(err))
}

func TestText_ClassifiesBeforeParsing(t *testing.T) {
	called := false
	classifier := response.ClassifierFunc(func(provider string, resp *http.Response) error {
		called = true
		return &errs.APIError{Provider: provider, StatusCode: resp.StatusCode}
	})
	r := response.NewResolver(classifier, nil)

	_, err := r.Text(openAIPolicy, httpResponse(500, `{"choices":[{"message":{"content":"ignored"}}]}`))

	apiErr, ok := errs.AsAPIError(err)
	require.True(t, ok)
	assert.True(t, called)
	assert.Equal(t, 500, apiErr.StatusCode)
}

type fakeDecoder struct {
	chunks []string
	err    error
	format provider.Format
}

func (d *fakeDecoder) Decode(_ context.Context, _ *http.Response, format provider.Format, h response.Handlers) {
	d.format = format
	for _, c := range d.chunks {
		h.OnChunk(c)
	}
	if d.err != nil {
		h.OnError(d.err)
	}
}

func TestStream_DelegatesToDecoder(t *testing.T) {
	dec := &fakeDecoder{chunks: []string{"Hel", "lo", "!"}}
	r := response.NewResolver(nil, dec)

	var got []string
	text, err := r.Stream(context.Background(), coherePolicy, httpResponse(200, ""), func(s string) { got = append(got, s) })
	require.NoError(t, err)

	assert.Equal(t, provider.FormatCohere, dec.format)
	assert.Equal(t, []string{"Hel", "lo", "!"}, got)
	assert.Equal(t, "Hello!", text)
}

func TestStream_ReportsDecoderError(t *testing.T) {
	boom := errors.New("boom")
	r := response.NewResolver(nil, &fakeDecoder{chunks: []string{"a"}, err: boom})

	text, err := r.Stream(context.Background(), openAIPolicy, httpResponse(200, ""), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "a", text)
}

func TestStream_ClassifiesErrorStatus(t *testing.T) {
	dec := &fakeDecoder{chunks: []string{"never"}}
	r := response.NewResolver(nil, dec)

	_, err := r.Stream(context.Background(), openAIPolicy, httpResponse(429, `{"error":{"message":"slow down","type":"rate_limit"}}`), nil)

	apiErr, ok := errs.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.Empty(t, dec.format)
}

func TestStream_NoDecoder(t *testing.T) {
	_, err := response.NewResolver(nil, nil).Stream(context.Background(), openAIPolicy, httpResponse(200, ""), nil)
	assert.ErrorIs(t, err, response.ErrNoDecoder)
}
