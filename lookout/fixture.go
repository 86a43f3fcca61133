package lookout

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"
)

// Fixture describes one test case with its requests in YAML
type Fixture struct {
	AppID     string           `yaml:"app_id"`
	LookoutID string           `yaml:"lookout_id"`
	Version   string           `yaml:"version,omitempty"`
	Requests  []FixtureRequest `yaml:"requests"`
}

type FixtureRequest struct {
	EventID            string            `yaml:"event_id"`
	LookoutDescription string            `yaml:"lookout_description"`
	URL                string            `yaml:"url"`
	HTTPMethod         string            `yaml:"http_method"`
	Headers            map[string]string `yaml:"headers,omitempty"`
	Body               string            `yaml:"body,omitempty"`
	Type               string            `yaml:"type"`
	DateMillis         int64             `yaml:"date_millis"`
	ExpectedHTTPStatus int               `yaml:"expected_http_status"`
	ExpectedResponse   string            `yaml:"expected_response,omitempty"`
}

// DemoFixture returns the data written by the demo command
func DemoFixture() *Fixture {
	headers := map[string]string{"Accept": "text/plain"}

	return &Fixture{
		AppID:     "app-test",
		LookoutID: "look123",
		Requests: []FixtureRequest{
			{EventID: "ev1", LookoutDescription: "evento 1", URL: "url1", HTTPMethod: "GET", Headers: headers,
				Body: "body", Type: "E", DateMillis: 123, ExpectedHTTPStatus: 200, ExpectedResponse: "response"},
			{EventID: "ev2", LookoutDescription: "evento 2", URL: "url2", HTTPMethod: "GET", Headers: headers,
				Body: "body", Type: "E", DateMillis: 123, ExpectedHTTPStatus: 400, ExpectedResponse: "response"},
			{EventID: "ev3", LookoutDescription: "evento 3", URL: "url3", HTTPMethod: "GET", Headers: headers,
				Body: "body", Type: "E", DateMillis: 123, ExpectedHTTPStatus: 500, ExpectedResponse: "response"},
		},
	}
}

func ParseFixture(data []byte) (*Fixture, error) {
	f := &Fixture{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("Can't parse fixture: %w", err)
	}

	if f.AppID == "" || f.LookoutID == "" {
		return nil, fmt.Errorf("Fixture needs app_id and lookout_id")
	}

	for i, r := range f.Requests {
		if r.EventID == "" {
			return nil, fmt.Errorf("Fixture request %d has no event_id", i)
		}
	}

	return f, nil
}

func LoadFixture(path string) (*Fixture, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Error reading fixture file %s: %w", path, err)
	}

	return ParseFixture(data)
}

// Records builds the test case and its requests.
// Requests keep the order of the fixture.
func (f *Fixture) Records() (*TestCase, []*Request) {
	tc := NewTestCase(f.AppID, f.LookoutID)
	tc.Version = f.Version

	requests := make([]*Request, len(f.Requests))
	for i, fr := range f.Requests {
		r := NewRequest(tc.ID, f.AppID, fr.EventID)
		r.LookoutID = f.LookoutID
		r.LookoutDescription = fr.LookoutDescription
		r.URL = fr.URL
		r.HTTPMethod = fr.HTTPMethod
		r.Headers = Headers(fr.Headers).String()
		r.Body = fr.Body
		r.Type = fr.Type
		r.DateMillis = fr.DateMillis
		r.ExpectedHTTPStatus = fr.ExpectedHTTPStatus
		r.ExpectedResponse = fr.ExpectedResponse

		requests[i] = r
	}

	return tc, requests
}
