package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/layer-3/mercuria/core"
)

// AnalyticsService reads aggregated metrics from the analytics backend
type AnalyticsService struct {
	sender Sender
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(sender Sender) *AnalyticsService {
	return &AnalyticsService{sender: sender}
}

// Daily returns one metric per day for the last days days
func (s *AnalyticsService) Daily(ctx context.Context, days int) ([]core.DailyMetric, error) {
	var out []core.DailyMetric
	if err := s.get(ctx, "/analytics/daily", limit("days", days), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Hourly returns one metric per hour for the last hours hours
func (s *AnalyticsService) Hourly(ctx context.Context, hours int) ([]core.HourlyMetric, error) {
	var out []core.HourlyMetric
	if err := s.get(ctx, "/analytics/hourly", limit("hours", hours), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates a period such as "day", "week" or "month"
func (s *AnalyticsService) Summary(ctx context.Context, period string) (*core.MetricsSummary, error) {
	var query url.Values
	if period != "" {
		query = url.Values{"period": {period}}
	}
	var out core.MetricsSummary
	if err := s.get(ctx, "/analytics/summary", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// User returns the totals of one user
func (s *AnalyticsService) User(ctx context.Context, userID string) (*core.UserAnalytics, error) {
	var out core.UserAnalytics
	if err := s.get(ctx, "/analytics/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserSnapshots returns the daily balance positions of one user
func (s *AnalyticsService) UserSnapshots(ctx context.Context, userID string, days int) ([]core.UserSnapshot, error) {
	var out []core.UserSnapshot
	if err := s.get(ctx, "/analytics/users/"+url.PathEscape(userID)+"/snapshots", limit("days", days), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AnalyticsService) get(ctx context.Context, path string, query url.Values, dst any) error {
	resp, err := s.sender.Send(ctx, core.Request{
		Service: core.ServiceAnalytics,
		Method:  http.MethodGet,
		Path:    path,
		Query:   query,
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func limit(name string, n int) url.Values {
	if n <= 0 {
		return nil
	}
	return url.Values{name: {strconv.Itoa(n)}}
}
