package apiclient

import (
	"context"
	"net/http"
)

// SaveAudit persists an analysis result for the token's user and returns the
// stored record.
func (c *Client) SaveAudit(ctx context.Context, result AnalysisResult, token string) (AnalysisResult, error) {
	var saved AnalysisResult
	if err := c.call(ctx, "save_audit", http.MethodPost, c.paths.Audits, token, result, &saved); err != nil {
		return AnalysisResult{}, err
	}
	return saved, nil
}

// GetAudits returns the user's scan history, newest first.
func (c *Client) GetAudits(ctx context.Context, token string) ([]AnalysisResult, error) {
	var audits []AnalysisResult
	if err := c.call(ctx, "get_audits", http.MethodGet, c.paths.Audits, token, nil, &audits); err != nil {
		return nil, err
	}
	if audits == nil {
		return []AnalysisResult{}, nil
	}
	return audits, nil
}

// GetAudit returns a single saved audit.
func (c *Client) GetAudit(ctx context.Context, id int64, token string) (AnalysisResult, error) {
	var audit AnalysisResult
	if err := c.call(ctx, "get_audit", http.MethodGet, itemPath(c.paths.Audits, id), token, nil, &audit); err != nil {
		return AnalysisResult{}, err
	}
	return audit, nil
}

// DeleteAudit removes a single saved audit.
func (c *Client) DeleteAudit(ctx context.Context, id int64, token string) error {
	return c.call(ctx, "delete_audit", http.MethodDelete, itemPath(c.paths.Audits, id), token, nil, nil)
}

// DeleteAllAudits removes the user's whole history.
func (c *Client) DeleteAllAudits(ctx context.Context, token string) error {
	return c.call(ctx, "delete_all_audits", http.MethodDelete, c.paths.Audits, token, nil, nil)
}
