// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commissioning

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

// ElementsEndpoint is queried with ?participantType=name:version.
const ElementsEndpoint = "/commission/elements"

type HTTPConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTPProvider reads definitions from a commissioning service.
type HTTPProvider struct {
	client  *retryablehttp.Client
	log     *zap.SugaredLogger
	baseURL string
}

func NewHTTPProvider(cfg HTTPConfig, log *zap.SugaredLogger) *HTTPProvider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}

	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = &zapRetryLogger{logger: log}

	return &HTTPProvider{
		client:  client,
		log:     log,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// HTTPClient exposes the underlying client, e.g. for gock.InterceptClient.
func (p *HTTPProvider) HTTPClient() *http.Client {
	return p.client.HTTPClient
}

func (p *HTTPProvider) GetElementDefinitions(ctx context.Context, participantType models.Identifier) ([]models.ElementDefinition, error) {
	query := url.Values{"participantType": []string{participantType.String()}}
	endpoint := p.baseURL + ElementsEndpoint + "?" + query.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build commissioning request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commissioning request for %s failed: %w", participantType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		p.log.Debugf("No element definitions commissioned for %s", participantType)

		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("commissioning returned %d for %s: %s", resp.StatusCode, participantType, strings.TrimSpace(string(body)))
	}

	var definitions []models.ElementDefinition
	if err := json.NewDecoder(resp.Body).Decode(&definitions); err != nil {
		return nil, fmt.Errorf("failed to decode element definitions for %s: %w", participantType, err)
	}

	if err := ValidateDefinitions(definitions); err != nil {
		return nil, fmt.Errorf("commissioning sent invalid definitions for %s: %w", participantType, err)
	}

	return definitions, nil
}

// zapRetryLogger adapts zap.SugaredLogger to retryablehttp.LeveledLogger.
type zapRetryLogger struct {
	logger *zap.SugaredLogger
}

func (z *zapRetryLogger) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Errorw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debugw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.logger.Debugw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.logger.Warnw(msg, keysAndValues...)
}
