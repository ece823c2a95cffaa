package policy

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/bastion/internal/providers/http/client"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const reportBase = "https://www.virustotal.com/gui"

// Verdict is the outcome of a URL reputation lookup.
type Verdict struct {
	Safe      bool
	ReportURL string
}

type analysisStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
}

type urlObject struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats *analysisStats `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Scanner queries VirusTotal for URL reputations and submits files.
type Scanner struct {
	client  *client.Client
	baseURL string
	logger  *zap.Logger
}

// NewScanner creates a scanner against the VirusTotal v3 API at baseURL.
func NewScanner(c *client.Client, baseURL string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{client: c, baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

// ScanURL looks up target's last analysis. Unknown URLs are submitted and
// treated as safe. An empty apiKey skips the lookup.
func (s *Scanner) ScanURL(ctx context.Context, apiKey, target string) (Verdict, error) {
	if apiKey == "" {
		return Verdict{Safe: true}, nil
	}

	id := base64.RawURLEncoding.EncodeToString([]byte(target))
	var obj urlObject
	resp, err := s.do(ctx, apiKey, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&obj).Get(s.baseURL + "/urls/" + id)
	})
	if err != nil {
		return Verdict{Safe: true}, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return s.submitURL(ctx, apiKey, target)
	default:
		return Verdict{Safe: true}, fmt.Errorf("url report: HTTP %d", resp.StatusCode())
	}

	verdict := Verdict{Safe: true, ReportURL: reportBase + "/url/" + obj.Data.ID}
	if stats := obj.Data.Attributes.LastAnalysisStats; stats != nil {
		verdict.Safe = stats.Malicious == 0 && stats.Suspicious == 0
		s.logger.Debug("url report",
			zap.String("url", target),
			zap.Int("malicious", stats.Malicious),
			zap.Int("suspicious", stats.Suspicious))
	}
	return verdict, nil
}

func (s *Scanner) submitURL(ctx context.Context, apiKey, target string) (Verdict, error) {
	var obj urlObject
	resp, err := s.do(ctx, apiKey, func(r *resty.Request) (*resty.Response, error) {
		return r.SetFormData(map[string]string{"url": target}).SetResult(&obj).Post(s.baseURL + "/urls")
	})
	if err != nil {
		return Verdict{Safe: true}, err
	}
	if resp.IsError() {
		return Verdict{Safe: true}, fmt.Errorf("url submit: HTTP %d", resp.StatusCode())
	}
	s.logger.Debug("url submitted for analysis", zap.String("url", target), zap.String("analysis", obj.Data.ID))

	// Analysis ids look like "u-<sha256>-<timestamp>".
	verdict := Verdict{Safe: true}
	if parts := strings.Split(obj.Data.ID, "-"); len(parts) >= 2 {
		verdict.ReportURL = reportBase + "/url/" + parts[1]
	}
	return verdict, nil
}

// ScanFile uploads a file for analysis and returns its report URL.
func (s *Scanner) ScanFile(ctx context.Context, apiKey, path string) (string, error) {
	if apiKey == "" {
		return "", nil
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return "", err
	}

	resp, err := s.do(ctx, apiKey, func(r *resty.Request) (*resty.Response, error) {
		return r.SetFile("file", path).Post(s.baseURL + "/files")
	})
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("file upload %s: HTTP %d", filepath.Base(path), resp.StatusCode())
	}
	return reportBase + "/file/" + sum, nil
}

func (s *Scanner) do(ctx context.Context, apiKey string, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	req, err := s.client.Request(ctx)
	if err != nil {
		return nil, err
	}
	req.SetHeader("x-apikey", apiKey)
	return s.client.Execute(func() (*resty.Response, error) { return fn(req) })
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
