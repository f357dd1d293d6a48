package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subly-reconciler/internal/config"
	"subly-reconciler/pkg/logging"
	"subly-reconciler/pkg/retry"
)

// PayoutRequest carries the provider-facing details of one due entry.
type PayoutRequest struct {
	RecipientType  string
	Receiver       string
	AmountMicros   uint64
	ServiceName    string
	SubscriptionID uint64
}

// PayoutError represents a payout request rejected by the provider.
type PayoutError struct {
	StatusCode int
	Body       string
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("PayPal payout failed (status %d): %s", e.StatusCode, e.Body)
}

// tokenCache holds the bearer credential owned by one PayPalService instance.
// Never a package-level singleton, so gateways under test do not interfere.
type tokenCache struct {
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// PayPalService talks to the PayPal REST API. Without client credentials it is
// a documented no-op: payouts are logged and reported as successful so the
// reconciliation can still exercise settlement recording.
type PayPalService struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	token        tokenCache
}

// NewPayPalService creates a new PayPal service instance from process config.
func NewPayPalService() *PayPalService {
	return NewPayPalServiceWith(
		config.AppConfig.PayPalAPIBase,
		config.AppConfig.PayPalClientID,
		config.AppConfig.PayPalClientSecret,
	)
}

// NewPayPalServiceWith creates a PayPal service with explicit settings.
func NewPayPalServiceWith(baseURL, clientID, clientSecret string) *PayPalService {
	if clientID == "" || clientSecret == "" {
		logging.Warnf("PAYPAL_CLIENT_ID or PAYPAL_CLIENT_SECRET not set. Payout calls will be skipped.")
	}
	return &PayPalService{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether live payouts are configured.
func (s *PayPalService) Enabled() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// payoutBody is the PayPal payouts request payload.
type payoutBody struct {
	SenderBatchHeader payoutBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type payoutBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject"`
	EmailMessage  string `json:"email_message"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Note          string       `json:"note"`
	SenderItemID  string       `json:"sender_item_id"`
	Receiver      string       `json:"receiver"`
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
	} `json:"batch_header"`
}

// CreatePayout submits one payout to PayPal and returns the provider batch id.
// Returns an empty batch id in no-op mode.
func (s *PayPalService) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	if !s.Enabled() {
		logging.Infof("  -> Skipping PayPal payout (credentials missing) for %s:%s amount %s USDC",
			req.RecipientType, req.Receiver, FormatMicroUSDC(req.AmountMicros))
		return "", nil
	}

	token, err := s.ensureAccessToken(ctx)
	if err != nil {
		return "", err
	}

	batchID := newBatchID()
	body := payoutBody{
		SenderBatchHeader: payoutBatchHeader{
			SenderBatchID: batchID,
			EmailSubject:  "You have received a payout",
			EmailMessage:  "Your Subly payout is on the way.",
		},
		Items: []payoutItem{
			{
				RecipientType: req.RecipientType,
				Amount: payoutAmount{
					Value:    MicroToUSDString(req.AmountMicros),
					Currency: "USD",
				},
				Note:         fmt.Sprintf("Subly payout for %s", req.ServiceName),
				SenderItemID: fmt.Sprintf("sub-%d", req.SubscriptionID),
				Receiver:     req.Receiver,
			},
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/payments/payouts", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create payout request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send payout request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read payout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &PayoutError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result payoutResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		logging.Warnf("PayPal payout accepted but response did not parse: %v", err)
		return batchID, nil
	}

	providerBatchID := result.BatchHeader.PayoutBatchID
	if providerBatchID == "" {
		providerBatchID = batchID
	}
	logging.Infof("  -> PayPal payout accepted. Batch ID: %s", providerBatchID)
	return providerBatchID, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ensureAccessToken returns the cached bearer token while valid, otherwise
// performs the OAuth2 client-credentials exchange. A 60 second safety margin
// is subtracted from the reported lifetime.
func (s *PayPalService) ensureAccessToken(ctx context.Context) (string, error) {
	s.token.mu.Lock()
	defer s.token.mu.Unlock()

	if s.token.accessToken != "" && time.Now().Before(s.token.expiresAt) {
		return s.token.accessToken, nil
	}

	var result tokenResponse
	err := retry.Do(ctx, retry.DefaultPolicy, "paypal token exchange", isTransportError, func() error {
		return s.fetchAccessToken(ctx, &result)
	})
	if err != nil {
		return "", err
	}

	expiresIn := result.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3000
	}
	s.token.accessToken = result.AccessToken
	s.token.expiresAt = time.Now().Add(time.Duration(expiresIn-60) * time.Second)
	return s.token.accessToken, nil
}

func (s *PayPalService) fetchAccessToken(ctx context.Context, out *tokenResponse) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	httpReq.Header.Set("Authorization", "Basic "+auth)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return &transportError{err: fmt.Errorf("failed to send token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PayoutError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}
	return nil
}

// newBatchID builds a sender batch id unique per call. Uniqueness is
// best-effort; the provider deduplicates on its side.
func newBatchID() string {
	return fmt.Sprintf("subly-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// transportError marks provider connection failures as retryable.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

func isTransportError(err error) bool {
	var transport *transportError
	return errors.As(err, &transport)
}
