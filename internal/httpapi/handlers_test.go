package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/service"
	"gudangpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return body["csrf_token"]
}

func doJSON(t *testing.T, api *API, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

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

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "kasir", Password: "kasir123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	if resp.Role != domain.RoleKasir || resp.WarehouseID != "wh-pusat" {
		t.Fatalf("expected kasir@wh-pusat, got %s@%s", resp.Role, resp.WarehouseID)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: "prod-mie", Qty: 2, SellPriceCents: 3500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.TotalCents != 7000 {
		t.Fatalf("expected total 7000, got %d", resp.Transaction.TotalCents)
	}
	if resp.Transaction.CashierID != "kasir" {
		t.Fatalf("expected cashier kasir, got %s", resp.Transaction.CashierID)
	}
}

func TestCheckoutInsufficientStockReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: "prod-mie", Qty: 100000, SellPriceCents: 3500}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "insufficient stock") {
		t.Fatalf("expected shortfall message, got %s", rec.Body.String())
	}
}

func TestReceiveStockForbiddenForKasir(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/receive", token, csrf, domain.ReceiveStockRequest{
		ProductID: "prod-mie", WarehouseID: "wh-pusat", Qty: 10, BuyPriceCents: 2000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTransferEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "gudang", "gudang123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/transfer", token, csrf, domain.TransferRequest{
		ProductID: "prod-mie", FromWarehouseID: "wh-pusat", ToWarehouseID: "wh-cabang", Qty: 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.TransferResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transfer.Qty != 5 || resp.Transfer.CreatedBy != "gudang" {
		t.Fatalf("unexpected transfer: %+v", resp.Transfer)
	}
}

func TestOpnameEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "gudang", "gudang123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/opname", token, csrf, domain.OpnameRequest{
		WarehouseID: "wh-pusat", ProductID: "prod-mie", CountedQty: 118, Notes: "two damaged",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.OpnameResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Opname.SystemQty != 120 || resp.Opname.Difference != -2 {
		t.Fatalf("expected system=120 diff=-2, got %+v", resp.Opname)
	}
}

func TestVoidRequiresSuperadmin(t *testing.T) {
	api := newTestAPI(t)
	kasirToken := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", kasirToken, csrf, domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: "prod-mie", Qty: 1, SellPriceCents: 3500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout setup failed: %d", rec.Code)
	}
	var created domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	voidPath := fmt.Sprintf("/api/v1/transactions/%s/void", created.Transaction.ID)
	rec = doJSON(t, api, http.MethodPost, voidPath, kasirToken, csrf, domain.VoidTransactionRequest{Reason: "oops"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kasir void, got %d", rec.Code)
	}

	adminToken := loginAs(t, api, "admin", "admin123")
	rec = doJSON(t, api, http.MethodPost, voidPath, adminToken, csrf, domain.VoidTransactionRequest{Reason: "wrong item"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin void, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSalesReportCSVExport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/sales?format=csv", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "transaction_id,") {
		t.Fatalf("expected CSV header row, got %q", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, map[string]any{
		"warehouse_id": "wh-pusat",
		"surprise":     true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestAuditLogsSuperadminOnly(t *testing.T) {
	api := newTestAPI(t)
	kasirToken := loginAs(t, api, "kasir", "kasir123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", kasirToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kasir, got %d", rec.Code)
	}

	adminToken := loginAs(t, api, "admin", "admin123")
	rec = doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", adminToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}
