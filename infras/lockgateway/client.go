package lockgateway

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"roomkey/config"
	"roomkey/infras/otel"
	"roomkey/shared/constant"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	pathToken          = "/oauth2/token"
	pathPasscodeAdd    = "/v3/keyboardPwd/add"
	pathPasscodeDelete = "/v3/keyboardPwd/delete"
	pathPasscodeList   = "/v3/lock/listKeyboardPwd"
	pathLockDetail     = "/v3/lock/detail"
	pathLockRecords    = "/v3/lockRecord/list"

	// addType/deleteType 2 pushes the change through the lock's wifi gateway instead of bluetooth.
	remoteOperation = "2"
	recordPageSize  = 100
	maxRecordPages  = 20

	codeInvalidToken   = 10003
	codeTokenExpired   = 10004
	codePasscodeExists = -3007
	codeLockNotFound   = -1003
	codePasscodeAbsent = -3009
	codeGatewayBusy    = -3003

	tokenRefreshMargin = time.Minute
	initialRetryDelay  = 200 * time.Millisecond
	maxRetryDelay      = 2 * time.Second
	maxErrorBody       = 512
)

var recordMethods = map[int]string{
	1:  "app",
	4:  "passcode",
	7:  "card",
	8:  "fingerprint",
	28: "remote",
}

type envelope struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	Description string `json:"description"`
}

type tokenResponse struct {
	envelope
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type passcodeResponse struct {
	envelope
	KeyboardPwdID int64 `json:"keyboardPwdId"`
}

type passcodeEntry struct {
	KeyboardPwdID   int64  `json:"keyboardPwdId"`
	KeyboardPwd     string `json:"keyboardPwd"`
	KeyboardPwdName string `json:"keyboardPwdName"`
}

type passcodeListResponse struct {
	envelope
	List  []passcodeEntry `json:"list"`
	Pages int             `json:"pages"`
}

type lockDetailResponse struct {
	envelope
	LockAlias        string `json:"lockAlias"`
	ElectricQuantity int    `json:"electricQuantity"`
	HasGateway       int    `json:"hasGateway"`
}

type lockRecord struct {
	RecordID    int64  `json:"recordId"`
	LockID      int64  `json:"lockId"`
	RecordType  int    `json:"recordType"`
	Success     int    `json:"success"`
	Username    string `json:"username"`
	KeyboardPwd string `json:"keyboardPwd"`
	LockDate    int64  `json:"lockDate"`
}

type lockRecordsResponse struct {
	envelope
	List   []lockRecord `json:"list"`
	PageNo int          `json:"pageNo"`
	Pages  int          `json:"pages"`
}

type client struct {
	config     *config.Config
	otel       otel.Otel
	httpClient *http.Client
	limiter    *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg *config.Config, otl otel.Otel) Gateway {
	gw := cfg.Lock.Gateway

	limit := rate.Inf
	if gw.RequestsPerSecond > 0 {
		limit = rate.Limit(gw.RequestsPerSecond)
	}

	burst := gw.Burst
	if burst < 1 {
		burst = 1
	}

	return &client{
		config:     cfg,
		otel:       otl,
		httpClient: &http.Client{Timeout: time.Duration(gw.TimeoutSeconds) * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *client) Configured() bool {
	gw := c.config.Lock.Gateway

	return gw.BaseURL != "" && gw.ClientID != "" && gw.ClientSecret != "" && gw.Username != "" && gw.Password != ""
}

func (c *client) Authenticate(ctx context.Context) (token string, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelGatewayScopeName, constant.OtelGatewayScopeName+".Authenticate")
	defer scope.End()
	defer scope.TraceIfError(&err)

	if !c.Configured() {
		return constant.Empty, ErrNotConfigured
	}

	gw := c.config.Lock.Gateway
	sum := md5.Sum([]byte(gw.Password)) //nolint:gosec

	form := url.Values{}
	form.Set("clientId", gw.ClientID)
	form.Set("clientSecret", gw.ClientSecret)
	form.Set("username", gw.Username)
	form.Set("password", hex.EncodeToString(sum[:]))

	var resp tokenResponse
	if err = c.do(ctx, http.MethodPost, pathToken, form, &resp); err != nil {
		return constant.Empty, err
	}

	if resp.AccessToken == "" {
		return constant.Empty, &APIError{Status: http.StatusOK, Message: "empty access token", kind: ErrUnauthorized}
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.mu.Unlock()

	log.Debug().Int64("expires_in", resp.ExpiresIn).Msg("Authenticated with lock gateway")

	return resp.AccessToken, nil
}

func (c *client) CreatePasscode(ctx context.Context, req PasscodeRequest) (credentialID string, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelGatewayScopeName, constant.OtelGatewayScopeName+".CreatePasscode")
	defer scope.End()
	defer scope.TraceIfError(&err)

	scope.SetAttribute("lock_id", req.LockID)

	form := url.Values{}
	form.Set("lockId", req.LockID)
	form.Set("keyboardPwd", req.Code)
	form.Set("keyboardPwdName", req.Label)
	form.Set("startDate", strconv.FormatInt(req.ValidFrom.UnixMilli(), 10))
	form.Set("endDate", strconv.FormatInt(req.ValidUntil.UnixMilli(), 10))
	form.Set("addType", remoteOperation)

	var resp passcodeResponse

	err = c.call(ctx, http.MethodPost, pathPasscodeAdd, form, &resp)
	if errors.Is(err, ErrPasscodeExists) {
		// A timed out attempt may have landed anyway; the code is ours when it carries our label.
		if id, found := c.findPasscode(ctx, req); found {
			log.Info().Str("lock_id", req.LockID).Str("credential_id", id).Msg("Adopted passcode left by an earlier attempt")

			return id, nil
		}
	}

	if err != nil {
		return constant.Empty, err
	}

	return strconv.FormatInt(resp.KeyboardPwdID, 10), nil
}

func (c *client) findPasscode(ctx context.Context, req PasscodeRequest) (string, bool) {
	for page := 1; page <= maxRecordPages; page++ {
		params := url.Values{}
		params.Set("lockId", req.LockID)
		params.Set("pageNo", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(recordPageSize))

		var resp passcodeListResponse
		if err := c.call(ctx, http.MethodGet, pathPasscodeList, params, &resp); err != nil {
			log.Warn().Err(err).Str("lock_id", req.LockID).Msg("Failed to list passcodes on lock")

			return constant.Empty, false
		}

		for _, entry := range resp.List {
			if entry.KeyboardPwd == req.Code && entry.KeyboardPwdName == req.Label {
				return strconv.FormatInt(entry.KeyboardPwdID, 10), true
			}
		}

		if page >= resp.Pages || len(resp.List) == 0 {
			break
		}
	}

	return constant.Empty, false
}

func (c *client) DeletePasscode(ctx context.Context, lockID, credentialID string) (err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelGatewayScopeName, constant.OtelGatewayScopeName+".DeletePasscode")
	defer scope.End()
	defer scope.TraceIfError(&err)

	scope.SetAttribute("lock_id", lockID)

	form := url.Values{}
	form.Set("lockId", lockID)
	form.Set("keyboardPwdId", credentialID)
	form.Set("deleteType", remoteOperation)

	var resp envelope

	return c.call(ctx, http.MethodPost, pathPasscodeDelete, form, &resp)
}

func (c *client) GetLockStatus(ctx context.Context, lockID string) (status LockStatus, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelGatewayScopeName, constant.OtelGatewayScopeName+".GetLockStatus")
	defer scope.End()
	defer scope.TraceIfError(&err)

	params := url.Values{}
	params.Set("lockId", lockID)

	var resp lockDetailResponse
	if err = c.call(ctx, http.MethodGet, pathLockDetail, params, &resp); err != nil {
		return LockStatus{LockID: lockID}, err
	}

	return LockStatus{
		LockID:       lockID,
		Name:         resp.LockAlias,
		Online:       resp.HasGateway == 1,
		BatteryLevel: resp.ElectricQuantity,
	}, nil
}

func (c *client) GetAccessLog(ctx context.Context, lockID string, from, to time.Time) (events []AccessEvent, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelGatewayScopeName, constant.OtelGatewayScopeName+".GetAccessLog")
	defer scope.End()
	defer scope.TraceIfError(&err)

	events = []AccessEvent{}

	for page := 1; page <= maxRecordPages; page++ {
		params := url.Values{}
		params.Set("lockId", lockID)
		params.Set("startDate", strconv.FormatInt(from.UnixMilli(), 10))
		params.Set("endDate", strconv.FormatInt(to.UnixMilli(), 10))
		params.Set("pageNo", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(recordPageSize))

		var resp lockRecordsResponse
		if err = c.call(ctx, http.MethodGet, pathLockRecords, params, &resp); err != nil {
			return nil, err
		}

		for _, record := range resp.List {
			events = append(events, toAccessEvent(lockID, record))
		}

		if page >= resp.Pages || len(resp.List) == 0 {
			break
		}
	}

	return events, nil
}

func toAccessEvent(lockID string, record lockRecord) AccessEvent {
	method, ok := recordMethods[record.RecordType]
	if !ok {
		method = "other"
	}

	return AccessEvent{
		RecordID:   strconv.FormatInt(record.RecordID, 10),
		LockID:     lockID,
		Method:     method,
		Success:    record.Success == 1,
		Username:   record.Username,
		Passcode:   record.KeyboardPwd,
		OccurredAt: time.UnixMilli(record.LockDate).UTC(),
	}
}

// call signs the request with the cached token and re-authenticates once when the vendor rejects it.
func (c *client) call(ctx context.Context, method, path string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	token, err := c.cachedToken(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, c.sign(params, token), out)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	log.Warn().Str("path", path).Msg("Lock gateway token rejected, re-authenticating")

	if token, err = c.Authenticate(ctx); err != nil {
		return err
	}

	return c.do(ctx, method, path, c.sign(params, token), out)
}

func (c *client) cachedToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.tokenExpiry
	c.mu.Unlock()

	if token != "" && time.Now().Add(tokenRefreshMargin).Before(expiry) {
		return token, nil
	}

	return c.Authenticate(ctx)
}

func (c *client) sign(params url.Values, token string) url.Values {
	signed := url.Values{}
	for key, values := range params {
		signed[key] = values
	}

	signed.Set("clientId", c.config.Lock.Gateway.ClientID)
	signed.Set("accessToken", token)
	signed.Set("date", strconv.FormatInt(time.Now().UnixMilli(), 10))

	return signed
}

// do sends one logical request. Transport failures, 5xx, 429 and a busy vendor gateway are retried.
func (c *client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = initialRetryDelay
	exponential.MaxInterval = maxRetryDelay

	tries := c.config.Lock.Gateway.MaxRetries + 1

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("waiting for rate limiter: %w", err))
		}

		return struct{}{}, c.send(ctx, method, path, params, out)
	}, backoff.WithBackOff(exponential), backoff.WithMaxTries(tries))

	return err //nolint:wrapcheck
}

func (c *client) send(ctx context.Context, method, path string, params url.Values, out any) error {
	endpoint := strings.TrimRight(c.config.Lock.Gateway.BaseURL, "/") + path

	var body io.Reader
	if method == http.MethodGet {
		endpoint += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}

	if body != nil {
		req.Header.Set(constant.RequestHeaderContentType, constant.ContentTypeFormURLEncoded)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		log.Warn().Err(err).Str("path", path).Msg("Lock gateway request failed")

		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}

	if env.ErrCode != 0 {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.ErrCode, Message: env.message(), kind: codeKind(env.ErrCode)}
		if env.ErrCode == codeGatewayBusy {
			return apiErr
		}

		return backoff.Permanent(apiErr)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}

	return nil
}

func statusError(resp *http.Response, raw []byte) error {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: string(raw)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.kind = ErrTransient
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			return fmt.Errorf("%w: %w", apiErr, backoff.RetryAfter(seconds))
		}

		return apiErr
	case resp.StatusCode >= http.StatusInternalServerError:
		apiErr.kind = ErrTransient

		return apiErr
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.kind = ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		apiErr.kind = ErrNotFound
	}

	return backoff.Permanent(apiErr)
}

func codeKind(code int) error {
	switch code {
	case codeInvalidToken, codeTokenExpired:
		return ErrUnauthorized
	case codePasscodeExists:
		return ErrPasscodeExists
	case codeLockNotFound, codePasscodeAbsent:
		return ErrNotFound
	case codeGatewayBusy:
		return ErrTransient
	default:
		return nil
	}
}

func (e envelope) message() string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}

	return e.Description
}
