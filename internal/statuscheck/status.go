package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the external dependencies of the service.
type Checker struct {
	redis            RedisPinger
	s3Region         string
	s3AccessKey      string
	s3SecretKey      string
	httpClient       *http.Client
	openAIKey        string
	openAIBaseURL    string
	anthropicKey     string
	anthropicBaseURL string
	mupdf            func() bool
}

// Options configures the Checker.
type Options struct {
	Redis            RedisPinger
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	HTTPClient       *http.Client
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	MuPDFAvailable   func() bool
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	OpenAI    Status `json:"openai"`
	Anthropic Status `json:"anthropic"`
	MuPDF     Status `json:"mupdf"`
}

// AIReady reports whether at least one provider answered.
func (s Summary) AIReady() bool { return s.MuPDF.OK && (s.OpenAI.OK || s.Anthropic.OK) }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	openAIBase := strings.TrimRight(opts.OpenAIBaseURL, "/")
	if openAIBase == "" {
		openAIBase = "https://api.openai.com/v1"
	}
	anthropicBase := strings.TrimRight(opts.AnthropicBaseURL, "/")
	if anthropicBase == "" {
		anthropicBase = "https://api.anthropic.com"
	}
	return &Checker{
		redis:            opts.Redis,
		s3Region:         opts.S3Region,
		s3AccessKey:      opts.S3AccessKey,
		s3SecretKey:      opts.S3SecretKey,
		httpClient:       client,
		openAIKey:        strings.TrimSpace(opts.OpenAIKey),
		openAIBaseURL:    openAIBase,
		anthropicKey:     strings.TrimSpace(opts.AnthropicKey),
		anthropicBaseURL: anthropicBase,
		mupdf:            opts.MuPDFAvailable,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		OpenAI:    c.checkOpenAI(ctx),
		Anthropic: c.checkAnthropic(ctx),
		MuPDF:     c.checkMuPDF(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkS3 resolves the credential chain without touching any bucket.
func (c *Checker) checkS3(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var loadOpts []func(*awscfg.LoadOptions) error
	if c.s3Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(c.s3Region))
	}
	if c.s3AccessKey != "" && c.s3SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.s3AccessKey, c.s3SecretKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if cfg.Credentials == nil {
		return Status{OK: false, Message: "Credentials missing"}
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Credentials available"}
}

func (c *Checker) checkOpenAI(ctx context.Context) Status {
	if c.openAIKey == "" {
		return Status{OK: false, Message: "API key missing"}
	}
	return c.probe(ctx, c.openAIBaseURL+"/models?limit=1", map[string]string{
		"Authorization": "Bearer " + c.openAIKey,
	})
}

func (c *Checker) checkAnthropic(ctx context.Context) Status {
	if c.anthropicKey == "" {
		return Status{OK: false, Message: "API key missing"}
	}
	return c.probe(ctx, c.anthropicBaseURL+"/v1/models", map[string]string{
		"x-api-key":         c.anthropicKey,
		"anthropic-version": "2023-06-01",
	})
}

func (c *Checker) probe(ctx context.Context, url string, headers map[string]string) Status {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkMuPDF() Status {
	if c.mupdf == nil || !c.mupdf() {
		return Status{OK: false, Message: "Text extraction unavailable"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
