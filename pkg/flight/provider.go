package flight

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds how much of a provider response is read into memory.
const maxBodyBytes = 8 << 20

// maxErrorBody bounds how much of an error body is kept on a StatusError.
const maxErrorBody = 512

// Provider is a single flight-data source. Implementations translate a
// bounding box into the source's request format and its response into
// canonical records, annotating each with DistanceKm from q.Home.
//
// Fetch returns a *TransportError, *StatusError or *ParseError (possibly
// wrapped) when the source cannot be used. Bad individual records are
// dropped without failing the batch.
type Provider interface {
	// Name returns a human-readable provider name for logging.
	Name() string

	// RequiresAPIKey reports whether Fetch needs Query.Credentials.APIKey.
	RequiresAPIKey() bool

	// Fetch returns every aircraft the source reports inside q.Box.
	Fetch(ctx context.Context, q Query) ([]FlightRecord, error)
}

// FetchBody executes req and returns the response body of a 2xx answer.
// Failures are classified into the provider error taxonomy.
func FetchBody(ctx context.Context, client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &TransportError{Provider: provider, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Provider: provider, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, newStatusError(provider, resp, body)
	}

	return body, nil
}
