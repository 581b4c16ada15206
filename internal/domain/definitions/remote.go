package definitions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// DefaultRemoteTimeout bounds a single request to the FHIR server when the
// caller's context has no deadline.
const DefaultRemoteTimeout = 15 * time.Second

const maxRemoteBody = 10 << 20

// RemoteLoader reads definitions from a FHIR server's Questionnaire
// endpoint. Canonical urls are resolved with a ?url= search; anything else
// is read by id.
type RemoteLoader struct {
	baseURL string
	client  *http.Client
}

// NewRemoteLoader creates a loader for baseURL. A nil client gets one with
// DefaultRemoteTimeout.
func NewRemoteLoader(baseURL string, client *http.Client) *RemoteLoader {
	if client == nil {
		client = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	return &RemoteLoader{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (l *RemoteLoader) LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
	target, ok := l.requestURL(ref)
	if !ok {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", ref, err)
	}
	req.Header.Set("Accept", "application/fhir+json, application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch questionnaire %s: %w", ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch questionnaire %s: unexpected status %d", ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return nil, fmt.Errorf("read questionnaire %s: %w", ref, err)
	}
	col, err := fhir.ParseCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode questionnaire %s: %w", ref, err)
	}
	if len(col.Questionnaires) == 0 {
		return nil, nil
	}
	return col.Questionnaires[0], nil
}

// requestURL maps ref onto a read or a search. It reports false for refs
// that cannot name a questionnaire.
func (l *RemoteLoader) requestURL(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if strings.Contains(ref, "://") {
		return l.baseURL + "/Questionnaire?url=" + url.QueryEscape(stripVersion(ref)), true
	}
	id := strings.TrimPrefix(stripVersion(ref), "/")
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return "", false
	}
	return l.baseURL + "/Questionnaire/" + url.PathEscape(id), true
}
