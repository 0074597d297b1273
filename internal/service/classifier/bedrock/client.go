// Package bedrock classifies answers with the Amazon Bedrock Converse API.
//
// Requests are plain HTTPS calls signed with SigV4 using credentials from the
// default AWS chain (environment, shared config, IRSA, instance profile).
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/cenkalti/backoff/v5"

	"ai-screening-call-service/internal/service/classifier"
)

const (
	defaultRegion = "us-east-1"
	defaultModel  = "anthropic.claude-3-haiku-20240307-v1:0"
	signingName   = "bedrock"
)

// Config holds Bedrock client settings.
type Config struct {
	Region    string
	ModelID   string
	Endpoint  string // overrides https://bedrock-runtime.<region>.amazonaws.com
	MaxTokens int
}

// Client implements classifier.Client.
type Client struct {
	cfg        Config
	awsCfg     aws.Config
	signer     *v4.Signer
	httpClient *http.Client
}

// New loads AWS credentials from the default chain and creates a client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithConfig(awsCfg, cfg, nil), nil
}

// NewWithConfig creates a client from an existing AWS config.
func NewWithConfig(awsCfg aws.Config, cfg Config, httpClient *http.Client) *Client {
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		awsCfg:     awsCfg,
		signer:     v4.NewSigner(),
		httpClient: httpClient,
	}
}

type contentBlock struct {
	Text string `json:"text"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type converseRequest struct {
	Messages        []message      `json:"messages"`
	System          []contentBlock `json:"system,omitempty"`
	InferenceConfig struct {
		MaxTokens   int     `json:"maxTokens"`
		Temperature float64 `json:"temperature"`
	} `json:"inferenceConfig"`
}

type converseResponse struct {
	Output struct {
		Message message `json:"message"`
	} `json:"output"`
	StopReason string `json:"stopReason"`
}

// verdict is the JSON object the model is asked to produce.
type verdict struct {
	ResponseType   string `json:"response_type"`
	ExtractedValue any    `json:"extracted_value"`
}

// Classify implements classifier.Client.
func (c *Client) Classify(ctx context.Context, req classifier.Request) (classifier.Response, error) {
	body := converseRequest{
		Messages: []message{{Role: "user", Content: []contentBlock{{Text: userPrompt(req)}}}},
		System:   []contentBlock{{Text: systemPrompt}},
	}
	body.InferenceConfig.MaxTokens = c.cfg.MaxTokens

	payload, err := json.Marshal(body)
	if err != nil {
		return classifier.Response{}, backoff.Permanent(err)
	}

	httpReq, err := c.newRequest(ctx, payload)
	if err != nil {
		return classifier.Response{}, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifier.Response{}, fmt.Errorf("converse request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifier.Response{}, fmt.Errorf("read converse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("converse returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return classifier.Response{}, err
		}
		return classifier.Response{}, backoff.Permanent(err)
	}

	var out converseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return classifier.Response{}, fmt.Errorf("decode converse response: %w", err)
	}

	var text strings.Builder
	for _, b := range out.Output.Message.Content {
		text.WriteString(b.Text)
	}
	return parseVerdict(text.String())
}

func (c *Client) newRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	base, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", c.cfg.Endpoint, err)
	}
	// Model IDs contain ':' which must be percent-encoded in the path.
	escaped := strings.ReplaceAll(url.PathEscape(c.cfg.ModelID), ":", "%3A")
	base.Path = "/model/" + c.cfg.ModelID + "/converse"
	base.RawPath = "/model/" + escaped + "/converse"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.awsCfg.Credentials == nil {
		return nil, errors.New("no AWS credentials configured")
	}
	creds, err := c.awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingName, c.cfg.Region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return req, nil
}

// parseVerdict extracts the JSON object between the first '{' and the last '}'.
func parseVerdict(text string) (classifier.Response, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return classifier.Response{}, fmt.Errorf("no JSON object in model output: %s", truncate(text, 120))
	}
	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return classifier.Response{}, fmt.Errorf("decode model verdict: %w", err)
	}
	return classifier.Response{
		Label:          v.ResponseType,
		ExtractedValue: stringify(v.ExtractedValue),
		Confidence:     1,
	}, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
