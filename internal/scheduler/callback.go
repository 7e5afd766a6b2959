package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anonto42/flick/backend/internal/middleware"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const callbackTokenTTL = 5 * time.Minute

// CallbackDeliverer executes callback tasks by POSTing the batch id to the
// dispatcher endpoint with a signed bearer token.
type CallbackDeliverer struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

func NewCallbackDeliverer(baseURL string, secret []byte, httpClient *http.Client) *CallbackDeliverer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &CallbackDeliverer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: httpClient,
	}
}

// ProcessTask implements asynq.Handler. Server errors are returned so the
// queue retries; client errors are final.
func (d *CallbackDeliverer) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task CallbackTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("unmarshal callback task: %v: %w", err, asynq.SkipRetry)
	}
	log := logrus.WithFields(logrus.Fields{"path": task.Path, "batch_id": task.BatchID})

	body, err := json.Marshal(map[string]string{"batchId": task.BatchID})
	if err != nil {
		return err
	}
	token, err := middleware.SignTaskToken(d.secret, strings.TrimPrefix(task.Path, "/"), callbackTokenTTL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+task.Path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("callback delivery failed")
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.WithField("status", resp.StatusCode).Debug("callback delivered")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		log.WithField("status", resp.StatusCode).Error("callback rejected")
		return fmt.Errorf("callback %s returned %d: %s: %w", task.Path, resp.StatusCode, respBody, asynq.SkipRetry)
	default:
		log.WithField("status", resp.StatusCode).Warn("callback failed, will retry")
		return fmt.Errorf("callback %s returned %d: %s", task.Path, resp.StatusCode, respBody)
	}
}
