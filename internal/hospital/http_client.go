package hospital

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/pkg/circuitbreaker"
)

// nodeResponse is the common envelope hospital backends respond with.
type nodeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

type createRecordResponse struct {
	RecordID string `json:"record_id"`
}

// HTTPClientConfig tunes one hospital's transport.
type HTTPClientConfig struct {
	Timeout    time.Duration
	RetryCount int
}

// HTTPClient talks to a single hospital node over its REST API.
type HTTPClient struct {
	hospitalID string
	rc         *resty.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     zerolog.Logger
}

func NewHTTPClient(hosp *model.Hospital, cfg HTTPClientConfig, logger zerolog.Logger) *HTTPClient {
	rc := resty.New().
		SetBaseURL(hosp.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		hospitalID: hosp.ID,
		rc:         rc,
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "hospital-" + hosp.ID,
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		}),
		logger: logger.With().Str("hospital_id", hosp.ID).Logger(),
	}
}

func (c *HTTPClient) HospitalID() string {
	return c.hospitalID
}

func (c *HTTPClient) FetchRecords(ctx context.Context, identityNumber string) ([]*model.MedicalRecord, error) {
	var records []*model.MedicalRecord

	err := c.call(ctx, func() (*resty.Response, *nodeResponse, error) {
		var envelope nodeResponse
		resp, err := c.rc.R().
			SetContext(ctx).
			SetResult(&envelope).
			SetPathParam("identity", identityNumber).
			Get("/api/v1/records/{identity}")
		return resp, &envelope, err
	}, func(data json.RawMessage) error {
		return json.Unmarshal(data, &records)
	})
	if err != nil {
		return nil, err
	}

	// Stamp the source hospital on every record; node payloads are not
	// trusted to carry it.
	for _, rec := range records {
		rec.HospitalID = c.hospitalID
	}

	return records, nil
}

func (c *HTTPClient) FetchSummary(ctx context.Context, identityNumber string) (*NodeSummary, error) {
	var summary NodeSummary

	err := c.call(ctx, func() (*resty.Response, *nodeResponse, error) {
		var envelope nodeResponse
		resp, err := c.rc.R().
			SetContext(ctx).
			SetResult(&envelope).
			SetPathParam("identity", identityNumber).
			Get("/api/v1/patients/{identity}/summary")
		return resp, &envelope, err
	}, func(data json.RawMessage) error {
		return json.Unmarshal(data, &summary)
	})
	if err != nil {
		return nil, err
	}

	return &summary, nil
}

func (c *HTTPClient) CreateRecord(ctx context.Context, req *model.CreateRecordRequest) (string, error) {
	var created createRecordResponse

	err := c.call(ctx, func() (*resty.Response, *nodeResponse, error) {
		var envelope nodeResponse
		resp, err := c.rc.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&envelope).
			Post("/api/v1/records")
		return resp, &envelope, err
	}, func(data json.RawMessage) error {
		return json.Unmarshal(data, &created)
	})
	if err != nil {
		return "", err
	}

	if created.RecordID == "" {
		return "", &CallError{
			Status: model.HospitalStatusError,
			Err:    fmt.Errorf("node returned empty record id"),
		}
	}

	return created.RecordID, nil
}

// call runs one node request under the circuit breaker and normalizes
// every failure mode into a CallError.
func (c *HTTPClient) call(
	ctx context.Context,
	do func() (*resty.Response, *nodeResponse, error),
	decode func(json.RawMessage) error,
) error {
	return c.cb.Execute(func() error {
		resp, envelope, err := do()
		if err != nil {
			return c.classifyTransportError(ctx, err)
		}

		if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
			return &CallError{
				Status: model.HospitalStatusError,
				Err:    fmt.Errorf("node responded %d", resp.StatusCode()),
			}
		}

		if !envelope.Success {
			return &CallError{
				Status: model.HospitalStatusError,
				Err:    fmt.Errorf("node error: %s", envelope.Error),
			}
		}

		if err := decode(envelope.Data); err != nil {
			return &CallError{
				Status: model.HospitalStatusError,
				Err:    fmt.Errorf("malformed node response: %w", err),
			}
		}

		return nil
	})
}

func (c *HTTPClient) classifyTransportError(ctx context.Context, err error) *CallError {
	status := model.HospitalStatusUnreachable

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
		status = model.HospitalStatusTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		status = model.HospitalStatusTimeout
	}

	c.logger.Warn().Err(err).Str("status", string(status)).Msg("hospital node call failed")

	return &CallError{Status: status, Err: err}
}
