package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/metrics"
	"poscore/backend/internal/service"
	"poscore/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo, err := memory.NewSeeded(nil)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	m := metrics.New()
	svc := service.New(repo, service.Options{Metrics: m})
	auth := NewAuthManager("test-secret-key", time.Hour, repo, nil)

	return New(svc, auth, "*", m, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return out
}

func productBySKU(t *testing.T, h http.Handler, token, sku string) domain.Product {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Products []domain.Product `json:"products"`
	}](t, rec)
	for _, p := range body.Products {
		if p.SKU == sku {
			return p
		}
	}
	t.Fatalf("product %s not found", sku)
	return domain.Product{}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products?low_stock=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Products []domain.Product `json:"products"`
	}](t, rec)
	if len(body.Products) != 1 || body.Products[0].SKU != "SKU-SOAP-01" {
		t.Fatalf("expected only the soap below minimum, got %+v", body.Products)
	}
}

func TestCashierCannotUseAdminRoutes(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"sku": "SKU-NEW-01", "name": "New", "sale_price": "1.00",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCashSaleAndReturnThroughDrawer(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier123")
	coffee := productBySKU(t, handler, token, "SKU-COFFEE-01")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions/open", token, map[string]any{"opening_float": "100"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: %d %s", rec.Code, rec.Body.String())
	}
	session := decodeBody[struct {
		Session domain.CashSession `json:"session"`
	}](t, rec).Session

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method_id": "pm-cash",
		"lines":             []map[string]any{{"product_id": coffee.ID, "quantity": "2"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}
	sale := decodeBody[struct {
		Sale domain.Sale `json:"sale"`
	}](t, rec).Sale
	if !sale.Total.Equal(decimal.RequireFromString("17.80")) {
		t.Fatalf("expected total 17.80, got %s", sale.Total)
	}
	if sale.CashSessionID != session.ID {
		t.Fatalf("expected sale posted to session %s, got %q", session.ID, sale.CashSessionID)
	}
	if !strings.HasPrefix(sale.InvoiceNumber, "F") || len(sale.InvoiceNumber) != 11 {
		t.Fatalf("unexpected invoice number %q", sale.InvoiceNumber)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/returns", token, map[string]any{
		"sale_id": sale.ID,
		"lines":   []map[string]any{{"sale_line_id": sale.Lines[0].ID, "quantity": "1"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create return: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/returns", token, map[string]any{
		"sale_id": sale.ID,
		"lines":   []map[string]any{{"sale_line_id": sale.Lines[0].ID, "quantity": "2"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for over-return, got %d %s", rec.Code, rec.Body.String())
	}
	errBody := decodeBody[map[string]any](t, rec)
	if errBody["kind"] != string(domain.KindReturnExceedsAvailable) {
		t.Fatalf("unexpected error kind %v", errBody["kind"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cash-sessions/"+session.ID+"/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: %d %s", rec.Code, rec.Body.String())
	}
	balance := decodeBody[domain.CashBalance](t, rec)
	if !balance.Balance.Equal(decimal.RequireFromString("108.90")) {
		t.Fatalf("expected balance 108.90, got %s", balance.Balance)
	}

	got := productBySKU(t, handler, token, "SKU-COFFEE-01")
	if !got.Stock.Equal(decimal.NewFromInt(39)) {
		t.Fatalf("expected stock 39, got %s", got.Stock)
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")
	soap := productBySKU(t, handler, token, "SKU-SOAP-01")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method_id": "pm-card",
		"lines":             []map[string]any{{"product_id": soap.ID, "quantity": "5"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdraw, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody[map[string]any](t, rec); body["kind"] != string(domain.KindInsufficientStock) {
		t.Fatalf("unexpected kind %v", body["kind"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/sal-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{"lines": []map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty sale, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method_id": "pm-card",
		"lines":             []map[string]any{{"product_id": soap.ID, "quantity": "1"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}
	sale := decodeBody[struct {
		Sale domain.Sale `json:"sale"`
	}](t, rec).Sale

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/"+sale.ID+"/confirm", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 confirming a completed sale, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/"+sale.ID+"/cancel", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel with empty body: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions/open", token, map[string]any{"opening_float": "10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions/open", token, map[string]any{"opening_float": "10"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second open session, got %d", rec.Code)
	}
}

func TestDiscountValidateEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()
	admin := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discounts", admin, map[string]any{
		"code": "save10", "kind": "percentage", "value": "10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create discount: %d %s", rec.Code, rec.Body.String())
	}

	cashier := login(t, handler, "cashier", "cashier123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/discounts/validate?code=Save10", cashier, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[domain.DiscountValidation](t, rec)
	if !result.Valid {
		t.Fatalf("expected code to validate, got %+v", result)
	}
}

func TestListFiltersFromQuery(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales?from=yesterday", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}

	today := time.Now().UTC().Format(time.DateOnly)
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/inventory/movements?kind=in&limit=2&from="+today+"&to="+today, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list movements: %d %s", rec.Code, rec.Body.String())
	}
	page := decodeBody[domain.Page[domain.InventoryMovement]](t, rec)
	if page.Total != 6 || len(page.Items) != 2 || page.Limit != 2 {
		t.Fatalf("unexpected page total=%d items=%d limit=%d", page.Total, len(page.Items), page.Limit)
	}
}

func TestParseListFilterDateOnlyCoversDay(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?from=2024-03-01&to=2024-03-01&page=0&limit=900&state=Completed", nil)
	filter, err := parseListFilter(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if filter.To.Sub(*filter.From) != 24*time.Hour {
		t.Fatalf("expected one-day window, got %s to %s", filter.From, filter.To)
	}
	if filter.Page != 1 || filter.Limit != domain.MaxPageLimit || filter.State != "completed" {
		t.Fatalf("unexpected filter %+v", filter)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	handler := newTestAPI(t).Handler()
	doJSON(t, handler, http.MethodGet, "/healthz", "", nil)

	rec := doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `poscore_http_requests_total{code="200",route="GET /healthz"}`) {
		t.Fatalf("expected health request counter in metrics output")
	}
}
