package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"go-face-analyzer/internal/config"
	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/models"
)

const (
	detectPath  = "/facepp/v3/detect"
	analyzePath = "/facepp/v3/face/analyze"
	searchPath  = "/facepp/v3/search"

	detectAttributes = "gender,age,skinstatus,facequality,emotion,beauty"

	maxResponseBytes = 2 << 20
)

// FacePPClient talks to the Face++ v3 API.
type FacePPClient struct {
	cfg    config.ProviderConfig
	client *http.Client
	synth  *synthetic.Generator
	events observer.Subject
	log    *logrus.Logger
}

// ClientOption configures a FacePPClient.
type ClientOption func(*FacePPClient)

// WithHTTPClient replaces the default tuned client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *FacePPClient) {
		c.client = hc
	}
}

// WithEvents publishes request and mapping events to s.
func WithEvents(s observer.Subject) ClientOption {
	return func(c *FacePPClient) {
		c.events = s
	}
}

// WithLogger sets the logger used for non-fatal provider failures.
func WithLogger(l *logrus.Logger) ClientOption {
	return func(c *FacePPClient) {
		c.log = l
	}
}

func NewFacePPClient(cfg config.ProviderConfig, synth *synthetic.Generator, opts ...ClientOption) *FacePPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultFacePPBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	c := &FacePPClient{
		cfg:    cfg,
		client: newHTTPClient(),
		synth:  synth,
		log:    logger.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

func (c *FacePPClient) Name() string {
	return NameFacePP
}

// Analyze runs detection, then the optional skin and resemblance calls, and
// maps the merged payload.
func (c *FacePPClient) Analyze(ctx context.Context, imageData string) (models.AnalysisResult, error) {
	if !c.cfg.Configured() {
		return models.AnalysisResult{}, apperrors.NewNotConfiguredError("Face++ API key and secret are not set")
	}

	payload, err := imagedata.Parse(imageData)
	if err != nil {
		return models.AnalysisResult{}, apperrors.NewInvalidImageError("image payload cannot be decoded", err)
	}

	detect, err := c.call(ctx, detectPath, map[string]string{
		"image_base64":      payload.Base64(),
		"return_attributes": detectAttributes,
	})
	if err != nil {
		return models.AnalysisResult{}, err
	}

	faces := detect.Get("faces")
	if !faces.IsArray() {
		return models.AnalysisResult{}, apperrors.NewMalformedResponseError("detect response has no faces list", nil)
	}
	list := faces.Array()
	if len(list) == 0 {
		return models.AnalysisResult{}, apperrors.NewNoFaceDetectedError("no face was found in the image")
	}

	face := list[0]
	attrs := face.Get("attributes")
	token := face.Get("face_token").String()

	var skin gjson.Result
	if c.cfg.SkinAnalysis && token != "" && !attrs.Get("skinstatus").Exists() {
		resp, err := c.call(ctx, analyzePath, map[string]string{
			"face_tokens":       token,
			"return_attributes": "skinstatus",
		})
		if err != nil {
			return models.AnalysisResult{}, err
		}
		skin = resp.Get("faces.0.attributes.skinstatus")
	}

	m := &mapper{synth: c.synth}
	result := m.result(attrs, skin)

	if c.cfg.CelebrityFacesetID != "" && token != "" {
		if r, ok := c.searchResemblance(ctx, token); ok {
			result.FacialResemblance = &r
			m.record("facialResemblance", sourceProvider)
		}
	}

	for _, d := range m.decisions {
		observer.Emit(ctx, c.events, observer.AnalysisEvent{
			EventType: observer.MappingDecision,
			Provider:  NameFacePP,
			Success:   true,
			Metadata:  map[string]interface{}{"field": d.field, "source": d.source},
		})
	}

	if err := result.Validate(); err != nil {
		return models.AnalysisResult{}, apperrors.NewMalformedResponseError("mapped result is out of range", err)
	}
	return result, nil
}

func (c *FacePPClient) searchResemblance(ctx context.Context, token string) (models.FacialResemblance, bool) {
	resp, err := c.call(ctx, searchPath, map[string]string{
		"face_token":          token,
		"faceset_token":       c.cfg.CelebrityFacesetID,
		"return_result_count": "1",
	})
	if err != nil {
		c.log.WithError(err).WithField("provider", NameFacePP).Warn("Resemblance search failed, omitting field")
		return models.FacialResemblance{}, false
	}
	return resemblance(resp)
}

// call posts a multipart form to path. 5xx responses and network errors are
// retried with linear backoff; 4xx responses are not.
func (c *FacePPClient) call(ctx context.Context, path string, fields map[string]string) (gjson.Result, error) {
	body, contentType, err := c.form(fields)
	if err != nil {
		return gjson.Result{}, apperrors.NewInternalError("failed to build provider request", err)
	}

	endpoint := c.cfg.BaseURL + path
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, time.Duration(attempt-1)*c.cfg.RetryBackoff); err != nil {
				return gjson.Result{}, apperrors.NewTransportError("provider call cancelled", err)
			}
		}

		observer.Emit(ctx, c.events, observer.AnalysisEvent{
			EventType: observer.ProviderRequestIssued,
			Provider:  NameFacePP,
			Metadata:  map[string]interface{}{"endpoint": path, "attempt": attempt},
		})

		start := time.Now()
		status, raw, err := c.post(ctx, endpoint, contentType, body)
		elapsed := time.Since(start)

		observer.Emit(ctx, c.events, observer.AnalysisEvent{
			EventType:      observer.ProviderResponseReceived,
			Provider:       NameFacePP,
			ProcessingTime: elapsed,
			Success:        err == nil && status >= 200 && status < 300,
			Metadata:       map[string]interface{}{"endpoint": path, "attempt": attempt, "status": status},
		})

		if err != nil {
			if ctx.Err() != nil {
				return gjson.Result{}, apperrors.NewTransportError("provider call cancelled", ctx.Err())
			}
			lastErr = err
			continue
		}

		switch {
		case status >= 500:
			lastErr = fmt.Errorf("server error: status code %d: %s", status, providerReason(raw))
			continue
		case status >= 400:
			return gjson.Result{}, apperrors.NewTransportError(
				fmt.Sprintf("provider rejected request: %s", providerReason(raw)),
				fmt.Errorf("client error: status code %d", status),
			)
		case status < 200 || status >= 300:
			return gjson.Result{}, apperrors.NewTransportError(
				"unexpected provider response",
				fmt.Errorf("status code %d", status),
			)
		}

		if !gjson.ValidBytes(raw) {
			return gjson.Result{}, apperrors.NewMalformedResponseError("provider response is not valid JSON", nil)
		}
		return gjson.ParseBytes(raw), nil
	}

	return gjson.Result{}, apperrors.NewTransportError(
		fmt.Sprintf("provider call failed after %d attempts", c.cfg.MaxRetries),
		lastErr,
	)
}

func (c *FacePPClient) post(ctx context.Context, endpoint, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("invalid provider URL: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read provider response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *FacePPClient) form(fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("api_key", c.cfg.APIKey); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("api_secret", c.cfg.APISecret); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// providerReason extracts Face++'s error_message, if the body has one.
func providerReason(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error_message").String(); msg != "" {
		return msg
	}
	return "no reason given"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
