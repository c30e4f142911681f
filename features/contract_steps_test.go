package features

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/cucumber/godog"

	"convenios/internal/convenios/api"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/infrastructure/memory"
)

type contractState struct {
	server     *httptest.Server
	response   *http.Response
	body       map[string]any
	convenioID int64
}

func InitializeScenario(sc *godog.ScenarioContext) {
	state := &contractState{}

	sc.Step(`^the service is running$`, state.theServiceIsRunning)
	sc.Step(`^I request the health endpoint$`, state.iRequestTheHealthEndpoint)
	sc.Step(`^I create a convenio named "([^"]*)" with a ticket cap of (\d+)$`, state.iCreateAConvenio)
	sc.Step(`^I request the created convenio$`, state.iRequestTheCreatedConvenio)
	sc.Step(`^I request convenio (\d+)$`, state.iRequestConvenio)
	sc.Step(`^the response status should be (\d+)$`, state.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, state.theResponseFieldShouldBe)

	sc.After(func(ctx context.Context, scenario *godog.Scenario, err error) (context.Context, error) {
		if state.server != nil {
			state.server.Close()
		}
		return ctx, nil
	})
}

func (s *contractState) theServiceIsRunning() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	service := application.NewConvenioService(memory.NewDataStore())
	api.NewHandler(service).RegisterRoutes(mux)
	s.server = httptest.NewServer(api.CorrelationMiddleware(5*time.Second, mux))
	return nil
}

// capture reads and closes the response body so later steps can inspect it.
func (s *contractState) capture(resp *http.Response) error {
	defer resp.Body.Close()
	s.response = resp
	s.body = map[string]any{}
	if resp.Header.Get("Content-Type") != "application/json" {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&s.body); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

func (s *contractState) get(path string) error {
	if s.server == nil {
		return fmt.Errorf("server not running")
	}
	resp, err := http.Get(s.server.URL + path)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", path, err)
	}
	return s.capture(resp)
}

func (s *contractState) iRequestTheHealthEndpoint() error {
	return s.get("/health")
}

func (s *contractState) iCreateAConvenio(nombre string, tope int) error {
	if s.server == nil {
		return fmt.Errorf("server not running")
	}
	payload, err := json.Marshal(map[string]any{
		"nombre":                nombre,
		"empresa_id":            1,
		"tope_cantidad_tickets": tope,
	})
	if err != nil {
		return err
	}
	resp, err := http.Post(s.server.URL+"/convenios", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create convenio: %w", err)
	}
	if err := s.capture(resp); err != nil {
		return err
	}
	if id, ok := s.body["id"].(float64); ok {
		s.convenioID = int64(id)
	}
	return nil
}

func (s *contractState) iRequestTheCreatedConvenio() error {
	if s.convenioID == 0 {
		return fmt.Errorf("no convenio was created")
	}
	return s.get(fmt.Sprintf("/convenios/%d", s.convenioID))
}

func (s *contractState) iRequestConvenio(id int) error {
	return s.get(fmt.Sprintf("/convenios/%d", id))
}

func (s *contractState) theResponseStatusShouldBe(expected int) error {
	if s.response == nil {
		return fmt.Errorf("no response received")
	}
	if s.response.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d", expected, s.response.StatusCode)
	}
	return nil
}

func (s *contractState) theResponseFieldShouldBe(field, expected string) error {
	value, ok := s.body[field]
	if !ok {
		return fmt.Errorf("response has no field %q: %v", field, s.body)
	}
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, fmt.Sprint(value))
	}
	return nil
}
