package lookout

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// UserAgent is set in fasthttp.Client
const UserAgent = "Lookout 1.0"

// RunnerParameters configure the HTTP client used to replay requests
type RunnerParameters struct {
	// BaseURL is prepended to request URLs without scheme
	BaseURL string

	// TLS settings
	SkipVerify bool
	CA         string
	Cert       string
	Key        string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Runner replays the requests of a test case one by one and stores what it observed
type Runner struct {
	RunnerParameters

	inv    *Inventory
	client *fasthttp.Client

	// NewExecutionID is used for every Run, defaults to GenerateTestExecutionID
	NewExecutionID func(testCaseID string) string
}

// NewRunner configure Runner and return it.
// It will setup fasthttp.Client with TLS options.
func NewRunner(inv *Inventory, params *RunnerParameters) (*Runner, error) {
	var tlsConfig tls.Config

	if params.SkipVerify {
		tlsConfig.InsecureSkipVerify = params.SkipVerify
	} else if params.CA != "" {
		caCert, err := ioutil.ReadFile(params.CA)
		if err != nil {
			return nil, fmt.Errorf("Error reading CA file %s: %w", params.CA, err)
		}

		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)

		tlsConfig.RootCAs = caCertPool

		if params.Cert != "" && params.Key != "" {
			cert, err := tls.LoadX509KeyPair(params.Cert, params.Key)
			if err != nil {
				return nil, fmt.Errorf("Could not load X509 key pair: %w", err)
			}

			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	client := &fasthttp.Client{
		Name:         UserAgent,
		ReadTimeout:  params.ReadTimeout,
		WriteTimeout: params.WriteTimeout,
		TLSConfig:    &tlsConfig,
	}

	return &Runner{
		RunnerParameters: *params,
		inv:              inv,
		client:           client,
		NewExecutionID:   GenerateTestExecutionID,
	}, nil
}

func (r *Runner) requestURL(url string) string {
	if r.BaseURL == "" || strings.Contains(url, "://") {
		return url
	}

	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
}

// Run creates new execution of the test case and performs all its requests.
// Requests are sent sequentially, the execution ends in RUNNED state.
func (r *Runner) Run(ctx context.Context, testCaseID string) (*TestExecution, error) {
	tc, err := r.inv.FindTestCase(ctx, testCaseID)
	if err != nil {
		return nil, fmt.Errorf("Can't get test case %s: %w", testCaseID, err)
	}

	if tc == nil {
		return nil, fmt.Errorf("Test case %s does not exist", testCaseID)
	}

	requests, err := r.inv.FindRequestsForTestCase(ctx, tc.ID)
	if err != nil {
		return nil, fmt.Errorf("Can't get requests of test case %s: %w", tc.ID, err)
	}

	execution := NewTestExecution(tc.ID, r.NewExecutionID(tc.ID))
	internals := make([]*InternalRequestExecution, len(requests))

	session := r.inv.NewSession()
	session.Add(execution)
	for i, req := range requests {
		internals[i] = NewInternalRequestExecution(tc.ID, execution.ID, req.ID)
		session.Add(internals[i])
	}

	if err := session.Commit(ctx); err != nil {
		return nil, err
	}

	for i, req := range requests {
		select {
		case <-ctx.Done():
			return execution, ctx.Err()
		default:
		}

		re := r.doRequest(execution.ID, req)
		if err := r.inv.Save(ctx, re); err != nil {
			return execution, err
		}

		internals[i].Status = StatusRunned
		if err := r.inv.UpdateInternalRequestExecution(ctx, internals[i]); err != nil {
			return execution, err
		}
	}

	execution.Status = StatusRunned
	execution.Result = fmt.Sprintf("%d requests executed", len(requests))
	if err := r.inv.UpdateTestExecution(ctx, execution); err != nil {
		return execution, err
	}

	return execution, nil
}

// doRequest perform the HTTP request described by req
func (r *Runner) doRequest(executionID string, req *Request) *RequestExecution {
	re := NewRequestExecution(executionID, req)
	// Body holds only what went on the wire
	re.Body = ""

	headers, err := ParseHeaders(req.Headers)
	if err != nil {
		re.Response = err.Error()
		return re
	}

	url := r.requestURL(req.URL)
	if !strings.Contains(url, "://") {
		re.Response = fmt.Sprintf("URL %s has no scheme and no base URL is set", url)
		return re
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(url)
	if req.HTTPMethod != "" {
		httpReq.Header.SetMethod(req.HTTPMethod)
	}

	for key, value := range headers {
		httpReq.Header.Add(key, value)
	}

	method := strings.ToUpper(req.HTTPMethod)
	if req.Body != "" && (method == fasthttp.MethodPost || method == fasthttp.MethodPut || method == fasthttp.MethodPatch) {
		httpReq.SetBodyString(req.Body)
		re.Body = req.Body
	}

	err = r.client.Do(httpReq, httpResp)
	if err != nil {
		re.Response = err.Error()
		return re
	}

	re.HTTPStatus = httpResp.StatusCode()
	re.Response = string(httpResp.Body())

	return re
}

// matchRequest compares observed call with the expectation.
// Body is compared only when expected response is set.
func matchRequest(req *Request, re *RequestExecution) (bool, string) {
	if re.HTTPStatus == 0 {
		return false, fmt.Sprintf("no response: %s", re.Response)
	}

	if re.HTTPStatus != req.ExpectedHTTPStatus {
		return false, fmt.Sprintf("status %d, expected %d", re.HTTPStatus, req.ExpectedHTTPStatus)
	}

	if req.ExpectedResponse != "" && re.Response != req.ExpectedResponse {
		return false, "response body mismatch"
	}

	return true, "ok"
}

// Validate compares every request execution of a RUNNED execution with its request
// and moves the execution to VALIDATED
func (r *Runner) Validate(ctx context.Context, executionID string) (*TestExecution, error) {
	execution, err := r.inv.FindTestExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("Can't get execution %s: %w", executionID, err)
	}

	if execution == nil {
		return nil, fmt.Errorf("Execution %s does not exist", executionID)
	}

	if execution.Status != StatusRunned {
		return nil, fmt.Errorf("Execution %s is %s, only %s executions can be validated", executionID, execution.Status, StatusRunned)
	}

	res, err := r.inv.FindRequestExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("Can't get request executions of %s: %w", executionID, err)
	}

	observed := make(map[string]*RequestExecution, len(res))
	for _, re := range res {
		observed[re.RequestID] = re
	}

	internals, err := r.inv.FindInternalRequestExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("Can't get requests of execution %s: %w", executionID, err)
	}

	var matched int
	for _, ire := range internals {
		req, err := r.inv.FindRequest(ctx, ire.RequestID)
		if err != nil {
			return nil, fmt.Errorf("Can't get request %s: %w", ire.RequestID, err)
		}

		if req == nil {
			return nil, fmt.Errorf("Request %s of execution %s does not exist", ire.RequestID, executionID)
		}

		if re, ok := observed[ire.RequestID]; ok {
			var match bool
			match, ire.Description = matchRequest(req, re)
			if match {
				matched++
			}
		} else {
			ire.Description = "not executed"
		}

		ire.Status = StatusValidated
		if err := r.inv.UpdateInternalRequestExecution(ctx, ire); err != nil {
			return nil, err
		}
	}

	execution.Status = StatusValidated
	execution.Result = fmt.Sprintf("%d/%d requests matched", matched, len(internals))
	if err := r.inv.UpdateTestExecution(ctx, execution); err != nil {
		return nil, err
	}

	return execution, nil
}
