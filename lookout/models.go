package lookout

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
)

const headerRegexp = `^([\w-]+):\s*(.+)`

// ExecutionStatus is the state of a test execution or of one of its requests
type ExecutionStatus string

const (
	StatusInitiated ExecutionStatus = "INITIATED"
	StatusRunned    ExecutionStatus = "RUNNED"
	StatusValidated ExecutionStatus = "VALIDATED"
)

func (s ExecutionStatus) String() string {
	return string(s)
}

// ParseExecutionStatus accepts the status name in any case
func ParseExecutionStatus(value string) (ExecutionStatus, error) {
	switch s := ExecutionStatus(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusInitiated, StatusRunned, StatusValidated:
		return s, nil
	}

	return "", fmt.Errorf("Unknown execution status %q", value)
}

// TestCase groups the requests recorded for one lookout of an application
type TestCase struct {
	ID        string
	AppID     string
	LookoutID string

	Created time.Time // zero value is stored as NULL
	Version string    // empty value is stored as NULL
}

// NewTestCase returns test case with the synthetic id derived from appID and lookoutID
func NewTestCase(appID, lookoutID string) *TestCase {
	return &TestCase{
		ID:        GenerateTestCaseID(appID, lookoutID),
		AppID:     appID,
		LookoutID: lookoutID,
	}
}

func (tc TestCase) String() string {
	return fmt.Sprintf(`Test case:
ID:			%s
App ID:			%s
Lookout ID:		%s
Created:		%v
Version:		%s
`, tc.ID, tc.AppID, tc.LookoutID, tc.Created, tc.Version)
}

// Request is a recorded HTTP call together with the expected response
type Request struct {
	ID                 string
	TestCaseID         string
	AppID              string
	EventID            string
	LookoutID          string
	LookoutDescription string

	URL        string
	HTTPMethod string
	Headers    string // one "Name: value" per line
	Body       string
	Type       string

	DateMillis int64
	DateTime   time.Time // zero value is replaced with current UTC time on insert

	ExpectedHTTPStatus int
	ExpectedResponse   string
}

// NewRequest returns request with the synthetic id derived from appID and eventID.
// Remaining fields are set by the caller.
func NewRequest(testCaseID, appID, eventID string) *Request {
	return &Request{
		ID:         GenerateRequestID(appID, eventID),
		TestCaseID: testCaseID,
		AppID:      appID,
		EventID:    eventID,
	}
}

func (r Request) String() string {
	return fmt.Sprintf(`Request:
ID:			%s
Test case:		%s
Event ID:		%s
Description:		%s
URL:			%s
Method:			%s
Type:			%s
Date:			%v
Headers:
%s
Expected status:	%d
Expected response:	%s
`, r.ID, r.TestCaseID, r.EventID, r.LookoutDescription, r.URL, r.HTTPMethod, r.Type, r.DateTime,
		r.Headers, r.ExpectedHTTPStatus, r.ExpectedResponse)
}

// TestExecution is one run of all requests of a test case
type TestExecution struct {
	ID         string
	TestCaseID string
	Status     ExecutionStatus
	Result     string
}

// NewTestExecution returns execution in INITIATED state.
// When executionID is empty a generated id is used.
func NewTestExecution(testCaseID, executionID string) *TestExecution {
	if executionID == "" {
		executionID = GenerateTestExecutionID(testCaseID)
	}

	return &TestExecution{
		ID:         executionID,
		TestCaseID: testCaseID,
		Status:     StatusInitiated,
	}
}

func (e TestExecution) String() string {
	return fmt.Sprintf(`Test execution:
ID:			%s
Test case:		%s
Status:			%s
Result:			%s
`, e.ID, e.TestCaseID, e.Status, e.Result)
}

// RequestExecution is what was actually sent and received for one request
type RequestExecution struct {
	ID          string
	ExecutionID string
	RequestID   string

	LookoutDescription string
	URL                string
	HTTPMethod         string
	Headers            string
	Body               string
	Type               string

	HTTPStatus int // 0 when no response was received, stored as NULL
	Response   string
}

// NewRequestExecution copies the call description of req
func NewRequestExecution(executionID string, req *Request) *RequestExecution {
	return &RequestExecution{
		ID:                 GenerateRequestExecutionID(executionID, req.ID),
		ExecutionID:        executionID,
		RequestID:          req.ID,
		LookoutDescription: req.LookoutDescription,
		URL:                req.URL,
		HTTPMethod:         req.HTTPMethod,
		Headers:            req.Headers,
		Body:               req.Body,
		Type:               req.Type,
	}
}

func (re RequestExecution) String() string {
	return fmt.Sprintf(`Request execution:
ID:			%s
Request:		%s
URL:			%s
Method:			%s
HTTP status:		%d
Response size:		%s
`, re.ID, re.RequestID, re.URL, re.HTTPMethod, re.HTTPStatus, bytefmt.ByteSize(uint64(len(re.Response))))
}

// InternalRequestExecution associates a request with an execution of its test case
type InternalRequestExecution struct {
	TestCaseID  string
	ExecutionID string
	RequestID   string

	Description string
	Status      ExecutionStatus
}

func NewInternalRequestExecution(testCaseID, executionID, requestID string) *InternalRequestExecution {
	return &InternalRequestExecution{
		TestCaseID:  testCaseID,
		ExecutionID: executionID,
		RequestID:   requestID,
		Status:      StatusInitiated,
	}
}

// Headers keeps request headers parsed from the text column
type Headers map[string]string

func NewHeaders() Headers {
	return make(Headers)
}

// ParseHeaders reads one header per line, blank lines are skipped
func ParseHeaders(text string) (Headers, error) {
	h := NewHeaders()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := h.Set(line); err != nil {
			return nil, err
		}
	}

	return h, nil
}

func (h Headers) Set(value string) error {
	r := regexp.MustCompile(headerRegexp)
	matches := r.FindStringSubmatch(value)

	if len(matches) < 3 {
		return fmt.Errorf("Can't parse header %s", value)
	}

	h[matches[1]] = matches[2]
	return nil
}

// String returns headers in the text column format, sorted by name
func (h Headers) String() string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + ": " + h[name]
	}

	return strings.Join(lines, "\n")
}
