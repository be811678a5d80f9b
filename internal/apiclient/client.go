// Package apiclient is the CLI's client for the habits HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brk3/streakmate/internal/server"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/brk3/streakmate/pkg/versioninfo"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(base, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		Token:   token,
		HTTP:    http.DefaultClient,
	}
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e server.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if json.Unmarshal(raw, &e) != nil {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Code: res.StatusCode, Message: e.Error}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) Version(ctx context.Context) (versioninfo.VersionInfo, error) {
	var v versioninfo.VersionInfo
	err := c.do(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}

// ListHabits returns the caller's non-archived habits.
func (c *Client) ListHabits(ctx context.Context) ([]habit.Habit, error) {
	return c.listHabits(ctx, false)
}

func (c *Client) ListAllHabits(ctx context.Context) ([]habit.Habit, error) {
	return c.listHabits(ctx, true)
}

func (c *Client) listHabits(ctx context.Context, archived bool) ([]habit.Habit, error) {
	path := "/habits/"
	if archived {
		path += "?archived=true"
	}
	var resp server.HabitListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return resp.Habits, nil
}

func (c *Client) CreateHabit(ctx context.Context, req server.CreateHabitRequest) (habit.Habit, error) {
	var h habit.Habit
	err := c.do(ctx, http.MethodPost, "/habits/", req, &h)
	return h, err
}

func (c *Client) GetHabit(ctx context.Context, id string) (habit.Habit, error) {
	var h habit.Habit
	err := c.do(ctx, http.MethodGet, habitPath(id), nil, &h)
	return h, err
}

func (c *Client) ArchiveHabit(ctx context.Context, id string, archived bool) (habit.Habit, error) {
	var h habit.Habit
	err := c.do(ctx, http.MethodPost, habitPath(id)+"/archive", server.ArchiveRequest{Archived: archived}, &h)
	return h, err
}

func (c *Client) ShareHabit(ctx context.Context, id string, shared bool) (habit.Habit, error) {
	var h habit.Habit
	err := c.do(ctx, http.MethodPost, habitPath(id)+"/share", server.ShareRequest{Shared: shared}, &h)
	return h, err
}

func (c *Client) DeleteHabit(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, habitPath(id), nil, nil)
}

func (c *Client) MarkStatus(ctx context.Context, id string, day habit.Date, status habit.Status, note *string) (server.MarkStatusResponse, error) {
	var resp server.MarkStatusResponse
	req := server.MarkStatusRequest{Status: string(status), Note: note}
	err := c.do(ctx, http.MethodPut, habitPath(id)+"/logs/"+url.PathEscape(day.String()), req, &resp)
	return resp, err
}

func (c *Client) ListLogs(ctx context.Context, id string, from, to *habit.Date) ([]habit.DailyLog, error) {
	q := url.Values{}
	if from != nil {
		q.Set("from", from.String())
	}
	if to != nil {
		q.Set("to", to.String())
	}
	path := habitPath(id) + "/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp server.LogListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

func (c *Client) GetHabitSummary(ctx context.Context, id string) (habit.HabitSummary, error) {
	var resp server.HabitSummaryResponse
	err := c.do(ctx, http.MethodGet, habitPath(id)+"/summary", nil, &resp)
	return resp.HabitSummary, err
}

func (c *Client) GetMe(ctx context.Context) (habit.User, error) {
	var u habit.User
	err := c.do(ctx, http.MethodGet, "/me", nil, &u)
	return u, err
}

func (c *Client) ListPartnerships(ctx context.Context) ([]habit.Partnership, error) {
	var resp server.PartnershipListResponse
	if err := c.do(ctx, http.MethodGet, "/partnerships/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Partnerships, nil
}

func (c *Client) CreateInvite(ctx context.Context) (habit.Partnership, error) {
	var p habit.Partnership
	err := c.do(ctx, http.MethodPost, "/partnerships/", nil, &p)
	return p, err
}

func (c *Client) AcceptInvite(ctx context.Context, code string) (habit.Partnership, error) {
	var p habit.Partnership
	err := c.do(ctx, http.MethodPost, "/partnerships/accept", server.AcceptInviteRequest{Code: code}, &p)
	return p, err
}

func (c *Client) RevokePartnership(ctx context.Context, id string) (habit.Partnership, error) {
	var p habit.Partnership
	err := c.do(ctx, http.MethodPost, "/partnerships/"+url.PathEscape(id)+"/revoke", nil, &p)
	return p, err
}

func (c *Client) PartnerView(ctx context.Context, ownerID string) ([]habit.SharedHabit, error) {
	var resp server.PartnerViewResponse
	if err := c.do(ctx, http.MethodGet, "/partners/"+url.PathEscape(ownerID)+"/habits", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Habits, nil
}

func habitPath(id string) string {
	return "/habits/" + url.PathEscape(id)
}
