package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/dvloznov/flowrunner/internal/staging"
	"golang.org/x/time/rate"
)

// DefaultAPIBase is the public Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Config holds the settings needed to stage Telegram files locally.
type Config struct {
	Token      string
	APIBase    string
	StagingDir string        // empty means os.TempDir()
	Timeout    time.Duration // bound for each HTTP call
	RPS        float64       // outbound request rate; <= 0 disables limiting
}

// Client resolves Telegram file references and downloads them into private
// staging files. The caller owns cleanup of every path it returns.
type Client struct {
	token      string
	apiBase    string
	stagingDir string
	http       *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Telegram client. A missing token is accepted here;
// Fetch reports it as a configuration error.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}

	return &Client{
		token:      cfg.Token,
		apiBase:    base,
		stagingDir: cfg.StagingDir,
		http:       &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// HasToken reports whether a bot token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	} `json:"result"`
}

// Fetch resolves ref to a retrieval path and downloads it into a uniquely
// named local file whose suffix follows the remote path. No retries.
func (c *Client) Fetch(ctx context.Context, ref receipt.FileReference) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("%w: telegram bot token is not set", receipt.ErrConfiguration)
	}

	log := logger.FromContext(ctx)

	filePath, err := c.resolve(ctx, ref.FileID)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("file_id", ref.FileID).
		Str("remote_path", filePath).
		Msg("Downloading Telegram file")

	body, err := c.download(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer body.Close()

	staged, err := staging.WriteFile(c.stagingDir, staging.SuffixFor(filePath), body)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("file_id", ref.FileID).
		Str("staged_path", staged).
		Msg("Telegram file staged")

	return staged, nil
}

// resolve calls getFile and returns the file_path used for download.
func (c *Client) resolve(ctx context.Context, fileID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: getFile: rate limiter: %v", receipt.ErrRemote, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/getFile", c.apiBase, c.token)
	form := url.Values{"file_id": {fileID}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: getFile: build request: %v", receipt.ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: getFile: %v", receipt.ErrRemote, redact(err, c.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: getFile: unexpected status %d", receipt.ErrRemote, resp.StatusCode)
	}

	var info getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("%w: getFile: decode response: %v", receipt.ErrRemote, err)
	}
	if !info.OK {
		return "", fmt.Errorf("%w: getFile: %s", receipt.ErrRemote, info.Description)
	}
	if info.Result.FilePath == "" {
		return "", fmt.Errorf("%w: getFile: response has no file_path", receipt.ErrRemote)
	}

	return info.Result.FilePath, nil
}

// download fetches the file bytes. The caller closes the returned body.
func (c *Client) download(ctx context.Context, filePath string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: download: rate limiter: %v", receipt.ErrRemote, err)
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: download: build request: %v", receipt.ErrRemote, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", receipt.ErrRemote, redact(err, c.token))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: download: unexpected status %d", receipt.ErrRemote, resp.StatusCode)
	}

	return resp.Body, nil
}

// redact keeps the bot token out of transport errors, which embed the URL.
func redact(err error, token string) string {
	return strings.ReplaceAll(err.Error(), token, "<token>")
}
