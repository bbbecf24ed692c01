package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On decides which HTTP outcomes are worth another attempt. The condition
// names follow envoy's retry_on header.
type On struct {
	anyServerError bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	statusCodes    []int
}

const DefaultRetryOn = "gateway-error,connect-failure,retriable-4xx"

func NewDefaultRetryOn() *On {
	return &On{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
	}
}

// NewRetryOnFromString parses a comma separated list of condition names and
// status codes, e.g. "5xx,429".
func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, condition := range strings.Split(s, ",") {
		condition = strings.TrimSpace(condition)
		switch condition {
		case "":
		case "5xx":
			o.anyServerError = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "retriable-4xx":
			o.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(condition)
			if err != nil || statusCode < 100 || statusCode > 599 {
				return nil, xerrors.Errorf("invalid retry condition: %q", condition)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

// ref https://github.com/envoyproxy/envoy/blob/70d6ec1df6384118cf2fa2f02c0041edb76b2377/source/common/router/retry_state_impl.cc#L387
func (o *On) CheckResponse(response *http.Response) bool {
	code := response.StatusCode
	if (o.anyServerError && code >= 500 && code < 600) ||
		(o.gatewayError && code >= 502 && code < 505) ||
		(o.retriable4xx && code == http.StatusConflict) {
		return true
	}

	for _, c := range o.statusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// CheckError reports whether a transport error, where no response arrived,
// should be retried.
func (o *On) CheckError(err error) bool {
	if !o.connectFailure && !o.anyServerError {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	type temporary interface{ Temporary() bool }
	var terr temporary
	return (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Outcome turns the result of one request into an error for Do: nil on a
// 1xx-3xx response, a retryable error when o matches, Permanent otherwise.
func (o *On) Outcome(response *http.Response, err error) error {
	if err != nil {
		if o.CheckError(err) {
			return err
		}
		return Permanent(err)
	}
	if response.StatusCode < 400 {
		return nil
	}

	err = xerrors.Errorf("unexpected status code: %d", response.StatusCode)
	if o.CheckResponse(response) {
		return err
	}
	return Permanent(err)
}
