// Package responses is a minimal client for the text-generation endpoint
// used by the translation pipeline and the goal evaluator.
//
// The endpoint accepts a JSON body {model, text:{format:{type:"text"}},
// input} and replies with one of several shapes depending on gateway and
// model; Generate extracts the output text tolerantly from any of them.
package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Error is an API error from the responses endpoint.
type Error struct {
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("responses: status %d: %s", e.HTTPStatus, e.Message)
}

// Client calls the responses endpoint.
type Client struct {
	// URL is the endpoint URL. Required.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the model id put in the request body.
	Model string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// request is the JSON body sent to the endpoint.
type request struct {
	Model string      `json:"model"`
	Text  textFormat  `json:"text"`
	Input string      `json:"input"`
}

type textFormat struct {
	Format formatType `json:"format"`
}

type formatType struct {
	Type string `json:"type"`
}

// Generate sends input to the endpoint and returns the extracted output
// text.
func (c *Client) Generate(ctx context.Context, input string) (string, error) {
	body, err := json.Marshal(request{
		Model: c.Model,
		Text:  textFormat{Format: formatType{Type: "text"}},
		Input: input,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("responses: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("responses: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{HTTPStatus: resp.StatusCode, Message: string(raw)}
	}

	out, err := ExtractOutput(raw)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ExtractOutput pulls the generated text out of a response body, trying
// each known shape in order: output_text, output[].content[].text,
// content[0].text, choices[0].message.content.
func ExtractOutput(raw []byte) (string, error) {
	var body struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("responses: parse body: %w", err)
	}

	if body.OutputText != "" {
		return body.OutputText, nil
	}
	for _, item := range body.Output {
		for _, part := range item.Content {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	if len(body.Content) > 0 && body.Content[0].Text != "" {
		return body.Content[0].Text, nil
	}
	if len(body.Choices) > 0 && body.Choices[0].Message.Content != "" {
		return body.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("responses: no output text in body")
}
