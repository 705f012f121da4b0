package resource

import (
	"context"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
)

// Analyze runs an analysis. It does not persist the result. When the caller
// is authenticated a success invalidates the history key.
func (h *Hooks) Analyze(ctx context.Context, url, lang, competitorURL string) (apiclient.AnalysisResult, error) {
	return querycache.Mutate(ctx, func(ctx context.Context) (apiclient.AnalysisResult, error) {
		return h.transport.Analyze(ctx, url, lang, competitorURL)
	}, querycache.MutateOptions[apiclient.AnalysisResult]{
		OnSuccess: func(apiclient.AnalysisResult) {
			if h.auth.IsAuthenticated() {
				h.cache.Invalidate(HistoryKey)
			}
		},
	})
}

// SaveScan persists result to the user's history. Without a stored token it
// resolves successfully without touching the network and reports
// saved=false; callers cannot use the error to detect a missing token.
// Either way a resolved save invalidates the history key.
func (h *Hooks) SaveScan(ctx context.Context, result apiclient.AnalysisResult) (saved bool, err error) {
	_, err = querycache.Mutate(ctx, func(ctx context.Context) (bool, error) {
		tok, err := h.token()
		if err != nil {
			return false, err
		}
		if tok == "" {
			h.logger.Debug("save skipped: no access token")
			return false, nil
		}
		if _, err := h.transport.SaveAudit(ctx, result, tok); err != nil {
			return false, err
		}
		saved = true
		return true, nil
	}, querycache.MutateOptions[bool]{
		OnSuccess: func(bool) { h.cache.Invalidate(HistoryKey) },
	})
	return saved, err
}

// History reads the user's saved audits through the cache. The read is
// disabled unless the caller is authenticated; when enabled the token is
// checked again at fetch time and its absence fails the read with
// apiclient.ErrNotAuthenticated.
func (h *Hooks) History(ctx context.Context) (querycache.Result[[]apiclient.AnalysisResult], error) {
	return querycache.Query(ctx, h.cache, HistoryKey, func(ctx context.Context) ([]apiclient.AnalysisResult, error) {
		tok, err := h.requireToken()
		if err != nil {
			return nil, err
		}
		return h.transport.GetAudits(ctx, tok)
	}, querycache.ReadOptions{Disabled: !h.auth.IsAuthenticated()})
}

// Audit reads one saved audit through the cache.
func (h *Hooks) Audit(ctx context.Context, id int64) (querycache.Result[apiclient.AnalysisResult], error) {
	return querycache.Query(ctx, h.cache, AuditKey(id), func(ctx context.Context) (apiclient.AnalysisResult, error) {
		tok, err := h.requireToken()
		if err != nil {
			return apiclient.AnalysisResult{}, err
		}
		return h.transport.GetAudit(ctx, id, tok)
	}, querycache.ReadOptions{Disabled: !h.auth.IsAuthenticated()})
}

// DeleteAudit removes one saved audit and invalidates it and the history.
func (h *Hooks) DeleteAudit(ctx context.Context, id int64) error {
	_, err := querycache.Mutate(ctx, func(ctx context.Context) (struct{}, error) {
		tok, err := h.requireToken()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, h.transport.DeleteAudit(ctx, id, tok)
	}, querycache.MutateOptions[struct{}]{
		OnSuccess: func(struct{}) { h.cache.Invalidate(HistoryKey, AuditKey(id)) },
	})
	return err
}

// ClearHistory removes every saved audit.
func (h *Hooks) ClearHistory(ctx context.Context) error {
	_, err := querycache.Mutate(ctx, func(ctx context.Context) (struct{}, error) {
		tok, err := h.requireToken()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, h.transport.DeleteAllAudits(ctx, tok)
	}, querycache.MutateOptions[struct{}]{
		OnSuccess: func(struct{}) {
			h.cache.Invalidate(HistoryKey)
			h.cache.InvalidatePrefix(auditPrefix)
		},
	})
	return err
}
