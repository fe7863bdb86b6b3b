// Package geo looks up Brazilian states and cities from the IBGE
// localities API.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://servicodados.ibge.gov.br/api/v1/localidades"

var ErrUnknownState = errors.New("unknown state")

type State struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Client fetches localities and caches them per key.
type Client struct {
	baseURL string
	http    *http.Client
	states  *expirable.LRU[string, []State]
	cities  *expirable.LRU[int, []string]
	log     *zap.Logger
}

func NewClient(baseURL string, ttl time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		states: expirable.NewLRU[string, []State](1, nil, ttl),
		cities: expirable.NewLRU[int, []string](32, nil, ttl),
		log:    log,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ibge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ibge request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ibge response: %w", err)
	}
	return nil
}

// States returns all states ordered by name. Any upstream failure falls back
// to the built-in list, which is not cached.
func (c *Client) States(ctx context.Context) []State {
	if states, ok := c.states.Get("all"); ok {
		return states
	}

	var raw []struct {
		ID    int    `json:"id"`
		Sigla string `json:"sigla"`
		Nome  string `json:"nome"`
	}
	if err := c.getJSON(ctx, "/estados?orderBy=nome", &raw); err != nil || len(raw) == 0 {
		c.log.Warn("Falling back to built-in state list", zap.Error(err))
		return FallbackStates()
	}

	states := make([]State, len(raw))
	for i, s := range raw {
		states[i] = State{ID: s.ID, Code: s.Sigla, Name: s.Nome}
	}
	c.states.Add("all", states)
	return states
}

// Cities returns the city names of a state given by two-letter code or
// numeric IBGE id. Upstream failures are returned to the caller.
func (c *Client) Cities(ctx context.Context, state string) ([]string, error) {
	id, err := c.resolveState(ctx, state)
	if err != nil {
		return nil, err
	}
	if cities, ok := c.cities.Get(id); ok {
		return cities, nil
	}

	var raw []struct {
		Nome string `json:"nome"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/estados/%d/municipios?orderBy=nome", id), &raw); err != nil {
		return nil, err
	}
	cities := make([]string, len(raw))
	for i, city := range raw {
		cities[i] = city.Nome
	}
	c.cities.Add(id, cities)
	return cities, nil
}

func (c *Client) resolveState(ctx context.Context, state string) (int, error) {
	state = strings.TrimSpace(state)
	if id, err := strconv.Atoi(state); err == nil && id > 0 {
		return id, nil
	}
	code := strings.ToUpper(state)
	for _, s := range c.States(ctx) {
		if s.Code == code {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, state)
}

// FallbackStates is the static list of the 27 federative units.
func FallbackStates() []State {
	return []State{
		{ID: 12, Code: "AC", Name: "Acre"},
		{ID: 27, Code: "AL", Name: "Alagoas"},
		{ID: 16, Code: "AP", Name: "Amapá"},
		{ID: 13, Code: "AM", Name: "Amazonas"},
		{ID: 29, Code: "BA", Name: "Bahia"},
		{ID: 23, Code: "CE", Name: "Ceará"},
		{ID: 53, Code: "DF", Name: "Distrito Federal"},
		{ID: 32, Code: "ES", Name: "Espírito Santo"},
		{ID: 52, Code: "GO", Name: "Goiás"},
		{ID: 21, Code: "MA", Name: "Maranhão"},
		{ID: 51, Code: "MT", Name: "Mato Grosso"},
		{ID: 50, Code: "MS", Name: "Mato Grosso do Sul"},
		{ID: 31, Code: "MG", Name: "Minas Gerais"},
		{ID: 15, Code: "PA", Name: "Pará"},
		{ID: 25, Code: "PB", Name: "Paraíba"},
		{ID: 41, Code: "PR", Name: "Paraná"},
		{ID: 26, Code: "PE", Name: "Pernambuco"},
		{ID: 22, Code: "PI", Name: "Piauí"},
		{ID: 33, Code: "RJ", Name: "Rio de Janeiro"},
		{ID: 24, Code: "RN", Name: "Rio Grande do Norte"},
		{ID: 43, Code: "RS", Name: "Rio Grande do Sul"},
		{ID: 11, Code: "RO", Name: "Rondônia"},
		{ID: 14, Code: "RR", Name: "Roraima"},
		{ID: 42, Code: "SC", Name: "Santa Catarina"},
		{ID: 35, Code: "SP", Name: "São Paulo"},
		{ID: 28, Code: "SE", Name: "Sergipe"},
		{ID: 17, Code: "TO", Name: "Tocantins"},
	}
}
