package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmwalaszek/lookout/lookout"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	out, rerr := ioutil.ReadAll(b)
	if rerr != nil {
		t.Fatalf("Can't read from buffer: %v", rerr)
	}

	return string(out), err
}

func openTestInventory(t *testing.T, db string) *lookout.Inventory {
	t.Helper()

	inv, err := lookout.NewInventory(db)
	if err != nil {
		t.Fatalf("Can't open inventory: %v", err)
	}

	t.Cleanup(func() {
		inv.Close()
	})

	return inv
}

func TestRootParams(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Can't get user home directory: %v", err)
	}

	// Check default config and db
	config := rootCmd.PersistentFlags().Lookup("config").DefValue
	inventory := rootCmd.PersistentFlags().Lookup("db").DefValue

	if config != home+"/.lookout/lookout.yaml" {
		t.Errorf("Default config mismatch should be %s but is %s", home+"/.lookout/lookout.yaml", config)
	}

	if inventory != home+"/.lookout/lookout.db" {
		t.Errorf("Default db location mismatch should be %s but is %s", home+"/.lookout/lookout.db", inventory)
	}
}

func TestErrorPrintedOnce(t *testing.T) {
	db := filepath.Join(t.TempDir(), "inventory.db")

	errOut := bytes.NewBufferString("")
	rootCmd.SetErr(errOut)
	defer rootCmd.SetErr(nil)

	out, err := execute(t, "show", "execution", "--db", db, "--id", "missing")
	if err == nil {
		t.Fatalf("Show of missing execution should fail")
	}

	// Execute prints the returned error, cobra stays quiet
	if strings.Contains(out, "Error:") || strings.Contains(errOut.String(), "Error:") {
		t.Errorf("Cobra should not print the error:\nstdout: %s\nstderr: %s", out, errOut.String())
	}
}

func TestDemo(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	// Run twice, the second run starts from empty tables
	for i := 0; i < 2; i++ {
		if _, err := execute(t, "demo", "--db", db); err != nil {
			t.Fatalf("Demo command failed: %v", err)
		}
	}

	inv := openTestInventory(t, db)
	ctx := context.Background()

	tcs, err := inv.FindAllTestCases(ctx)
	if err != nil {
		t.Fatalf("Error via find all test cases: %v", err)
	}

	if len(tcs) != 1 || tcs[0].ID != "app-test-look123" {
		t.Fatalf("Demo should leave only app-test-look123 test case: %v", tcs)
	}

	requests, err := inv.FindRequestsForTestCase(ctx, tcs[0].ID)
	if err != nil {
		t.Fatalf("Error query requests: %v", err)
	}

	if len(requests) != 3 {
		t.Errorf("Demo should save 3 requests but there are %d", len(requests))
	}

	for i, r := range requests {
		want := fmt.Sprintf("app-test-ev%d", i+1)
		if r.ID != want {
			t.Errorf("Request id should be %s but it is %s", want, r.ID)
		}
	}

	out, err := execute(t, "show", "testcase", "--db", db, "--id", "app-test-look123")
	if err != nil {
		t.Fatalf("Show command failed: %v", err)
	}

	for _, want := range []string{"app-test-look123", "app-test-ev1", "evento 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("Show output should contain %s:\n%s", want, out)
		}
	}

	out, err = execute(t, "show", "testcase", "--db", db, "--id", "app-test-look123", "--full")
	if err != nil {
		t.Fatalf("Show command with full details failed: %v", err)
	}

	if !strings.Contains(out, "Accept: text/plain") {
		t.Errorf("Full show output should contain request headers:\n%s", out)
	}
}

func TestAddRunAndDelete(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			fmt.Fprintf(w, `{"version":"0.1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(handler))
	defer server.Close()

	dir := t.TempDir()
	db := filepath.Join(dir, "inventory.db")
	fixture := filepath.Join(dir, "fixture.yaml")

	data := `app_id: svc
lookout_id: smoke
requests:
  - event_id: version
    url: /version
    http_method: GET
    type: E
    expected_http_status: 200
    expected_response: '{"version":"0.1"}'
  - event_id: missing
    url: /missing
    http_method: GET
    type: E
    expected_http_status: 404
`
	if err := ioutil.WriteFile(fixture, []byte(data), 0644); err != nil {
		t.Fatalf("Can't write fixture: %v", err)
	}

	if _, err := execute(t, "add", "--db", db, "-f", fixture); err != nil {
		t.Fatalf("Add command failed: %v", err)
	}

	out, err := execute(t, "run", "--db", db, "--test-case", "svc-smoke", "--base_url", server.URL, "--validate")
	if err != nil {
		t.Fatalf("Run command failed: %v", err)
	}

	if !strings.Contains(out, "2/2 requests matched") {
		t.Errorf("Run output should report 2/2 matched requests:\n%s", out)
	}

	inv := openTestInventory(t, db)
	executions, err := inv.FindExecutionsForTestCase(context.Background(), "svc-smoke")
	if err != nil {
		t.Fatalf("Error find executions: %v", err)
	}

	if len(executions) != 1 || executions[0].Status != lookout.StatusValidated {
		t.Fatalf("There should be one VALIDATED execution: %v", executions)
	}

	out, err = execute(t, "show", "execution", "--db", db, "--id", executions[0].ID)
	if err != nil {
		t.Fatalf("Show execution command failed: %v", err)
	}

	if !strings.Contains(out, "svc-version") || !strings.Contains(out, "VALIDATED") {
		t.Errorf("Show execution output is missing request rows:\n%s", out)
	}

	if _, err := execute(t, "delete", "--db", db, "--test-case", "svc-smoke"); err != nil {
		t.Fatalf("Delete command failed: %v", err)
	}

	tc, err := inv.FindTestCase(context.Background(), "svc-smoke")
	if err != nil {
		t.Fatalf("Error find test case: %v", err)
	}

	if tc != nil {
		t.Errorf("Test case should be deleted")
	}
}
