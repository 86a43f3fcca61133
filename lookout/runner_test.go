package lookout

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func seedDemo(t *testing.T, inv *Inventory) *TestCase {
	t.Helper()

	tc, requests := demoRecords(t)
	session := inv.NewSession()
	session.Add(tc)
	for _, r := range requests {
		session.Add(r)
	}

	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Error saving demo records: %v", err)
	}

	return tc
}

func TestRunAndValidate(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string]string)

	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Can't read request body: %v", err)
		}

		mu.Lock()
		received[r.URL.Path] = string(body)
		mu.Unlock()

		if accept := r.Header.Get("Accept"); accept != "text/plain" {
			t.Errorf("Accept header should be text/plain but it is %s", accept)
		}

		switch r.URL.Path {
		case "/url1":
			fmt.Fprintf(w, "response")
		case "/url2":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "response")
		default:
			fmt.Fprintf(w, "unexpected")
		}
	}

	server := httptest.NewServer(http.HandlerFunc(handler))
	defer server.Close()

	ctx := context.Background()
	inv := newTestInventory(t)
	tc := seedDemo(t, inv)

	runner, err := NewRunner(inv, &RunnerParameters{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Can't create runner: %v", err)
	}

	runner.NewExecutionID = func(testCaseID string) string {
		return testCaseID + "-run1"
	}

	execution, err := runner.Run(ctx, tc.ID)
	if err != nil {
		t.Fatalf("Error running test case: %v", err)
	}

	want := &TestExecution{
		ID:         "app-test-look123-run1",
		TestCaseID: tc.ID,
		Status:     StatusRunned,
		Result:     "3 requests executed",
	}
	if diff := cmp.Diff(want, execution); diff != "" {
		t.Errorf("Execution mismatch (-want +got):\n%s", diff)
	}

	res, err := inv.FindRequestExecutions(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error find request executions: %v", err)
	}

	if len(res) != 3 {
		t.Fatalf("There should be 3 request executions but there are %d", len(res))
	}

	statuses := []int{200, 400, 200}
	for i, re := range res {
		if re.HTTPStatus != statuses[i] {
			t.Errorf("Request execution %s status should be %d but it is %d", re.ID, statuses[i], re.HTTPStatus)
		}
	}

	// GET requests go without the recorded body
	mu.Lock()
	for i, re := range res {
		path := fmt.Sprintf("/url%d", i+1)
		if re.Body != received[path] {
			t.Errorf("Request execution %s body should be %q as sent but it is %q", re.ID, received[path], re.Body)
		}

		if re.Body != "" {
			t.Errorf("GET request execution %s should not have a body: %q", re.ID, re.Body)
		}
	}
	mu.Unlock()

	if res[0].ID != "app-test-look123-run1-app-test-ev1" {
		t.Errorf("Unexpected request execution id %s", res[0].ID)
	}

	ires, err := inv.FindInternalRequestExecutions(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error find internal request executions: %v", err)
	}

	for _, ire := range ires {
		if ire.Status != StatusRunned {
			t.Errorf("Internal request execution %s should be RUNNED but it is %s", ire.RequestID, ire.Status)
		}
	}

	validated, err := runner.Validate(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error validating execution: %v", err)
	}

	if validated.Status != StatusValidated {
		t.Errorf("Execution should be VALIDATED but it is %s", validated.Status)
	}

	if validated.Result != "2/3 requests matched" {
		t.Errorf("Unexpected validation result %q", validated.Result)
	}

	ires, err = inv.FindInternalRequestExecutions(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error find internal request executions: %v", err)
	}

	descriptions := []string{"ok", "ok", "status 200, expected 500"}
	for i, ire := range ires {
		if ire.Status != StatusValidated {
			t.Errorf("Internal request execution %s should be VALIDATED but it is %s", ire.RequestID, ire.Status)
		}

		if ire.Description != descriptions[i] {
			t.Errorf("Description of %s should be %q but it is %q", ire.RequestID, descriptions[i], ire.Description)
		}
	}

	if _, err := runner.Validate(ctx, execution.ID); err == nil {
		t.Errorf("Validated execution should not be validated again")
	}
}

func TestRunUnknownTestCase(t *testing.T) {
	inv := newTestInventory(t)

	runner, err := NewRunner(inv, &RunnerParameters{})
	if err != nil {
		t.Fatalf("Can't create runner: %v", err)
	}

	if _, err := runner.Run(context.Background(), "missing"); err == nil {
		t.Errorf("Run of missing test case should fail")
	}
}

func TestRunWithoutServer(t *testing.T) {
	ctx := context.Background()
	inv := newTestInventory(t)
	tc := seedDemo(t, inv)

	// Relative URLs without base URL can't be requested
	runner, err := NewRunner(inv, &RunnerParameters{})
	if err != nil {
		t.Fatalf("Can't create runner: %v", err)
	}

	execution, err := runner.Run(ctx, tc.ID)
	if err != nil {
		t.Fatalf("Error running test case: %v", err)
	}

	validated, err := runner.Validate(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error validating execution: %v", err)
	}

	if validated.Result != "0/3 requests matched" {
		t.Errorf("Unexpected validation result %q", validated.Result)
	}
}

func TestRunPostBody(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	s := &fasthttp.Server{
		DisableKeepalive: true,
		Handler: func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusCreated)
			ctx.Write(ctx.Request.Body())
		},
	}

	go s.Serve(ln)
	defer s.Shutdown()

	ctx := context.Background()
	inv := newTestInventory(t)

	tc := NewTestCase("shop", "checkout")
	req := NewRequest(tc.ID, "shop", "pay")
	req.URL = "http://shop.local/pay"
	req.HTTPMethod = "POST"
	req.Body = "amount=10"
	req.ExpectedHTTPStatus = fasthttp.StatusCreated
	req.ExpectedResponse = "amount=10"

	if err := inv.Save(ctx, tc, req); err != nil {
		t.Fatalf("Error saving records: %v", err)
	}

	runner, err := NewRunner(inv, &RunnerParameters{})
	if err != nil {
		t.Fatalf("Can't create runner: %v", err)
	}

	runner.client = &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		},
	}

	execution, err := runner.Run(ctx, tc.ID)
	if err != nil {
		t.Fatalf("Error running test case: %v", err)
	}

	validated, err := runner.Validate(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error validating execution: %v", err)
	}

	if validated.Result != "1/1 requests matched" {
		t.Errorf("Unexpected validation result %q", validated.Result)
	}

	res, err := inv.FindRequestExecutions(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Error find request executions: %v", err)
	}

	if len(res) != 1 || res[0].Body != "amount=10" {
		t.Errorf("POST request execution should keep the sent body: %v", res)
	}
}

func TestRequestURL(t *testing.T) {
	r := &Runner{RunnerParameters: RunnerParameters{BaseURL: "http://localhost:8080/"}}

	tests := []struct {
		url  string
		want string
	}{
		{"url1", "http://localhost:8080/url1"},
		{"/api/v1", "http://localhost:8080/api/v1"},
		{"https://example.com/x", "https://example.com/x"},
	}

	for _, tt := range tests {
		if got := r.requestURL(tt.url); got != tt.want {
			t.Errorf("requestURL(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}
