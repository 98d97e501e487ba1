package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/logging"
	"github.com/SamiSolomon/mobile/internal/report"
	"github.com/SamiSolomon/mobile/internal/service"
)

// API serves the shop's JSON endpoints on top of a Service.
type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           logrus.FieldLogger
	loginLimiter  *RateLimiter
	csrf          *csrfSigner
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logging.Discard()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		log:           logger,
		loginLimiter:  NewRateLimiter(rate.Every(12*time.Second), 5), // five attempts, then one per 12s
		csrf:          newCSRFSigner(),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/credit-sales", a.requireAuth(a.handleCreditSales, domain.RoleCashier, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/alerts", a.requireAuth(a.handleAlerts, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/reports/summary", a.requireAuth(a.handleReportSummary, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/reorder-suggestions", a.requireAuth(a.handleReorderSuggestions, domain.RoleCashier, domain.RoleAdmin))
	// finance folds in loans, which only admins manage
	mux.HandleFunc("/api/v1/finance/summary", a.requireAuth(a.handleFinanceSummary, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/loans", a.requireAuth(a.handleLoans, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/loans/", a.requireAuth(a.handleLoanActions, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.csrf.issue(time.Now()),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		products, err := a.service.ListProducts(r.Context(), q.Get("q"), q.Get("stock"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id, action, err := parseResourcePath(r.URL.Path, "/api/v1/products/")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case action == "" && r.Method == http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case action == "" && r.Method == http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "restock" && r.Method == http.MethodPost:
		var req domain.RestockRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		purchase, err := a.service.RestockProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
	case action == "stock-count" && r.Method == http.MethodPost:
		var req domain.StockCountRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.CountStock(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case action == "purchases" && r.Method == http.MethodGet:
		purchases, err := a.service.ListPurchases(r.Context(), &id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
	case action == "" || action == "restock" || action == "stock-count" || action == "purchases":
		a.writeMethodNotAllowed(w)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown product action %q", action))
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	var productID *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("product_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			a.writeError(w, http.StatusBadRequest, errors.New("invalid product_id"))
			return
		}
		productID = &id
	}

	purchases, err := a.service.ListPurchases(r.Context(), productID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := a.parseSaleFilter(r)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		sales, err := a.service.ListSales(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	id, action, err := parseResourcePath(r.URL.Path, "/api/v1/sales/")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case action == "" && r.Method == http.MethodDelete:
		if err := a.service.DeleteSale(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "mark-paid" && r.Method == http.MethodPost:
		sale, err := a.service.MarkPaid(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case action == "" || action == "mark-paid":
		a.writeMethodNotAllowed(w)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown sale action %q", action))
	}
}

func (a *API) handleCreditSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	sales, err := a.service.ListCreditSales(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	alerts, err := a.service.Alerts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	summary, err := a.service.Summary(r.Context(), q.Get("period"), q.Get("customer"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-%s-%s.csv\"", summary.Period, summary.From.Format("2006-01-02")))
		if err := report.WriteCSV(w, summary); err != nil {
			a.log.WithError(err).Warn("csv report write failed")
		}
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(summaryToPrintableHTML(summary)))
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleFinanceSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.FinanceSummary(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		loans, err := a.service.ListLoans(r.Context(), r.URL.Query().Get("kind"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loans": loans})
	case http.MethodPost:
		var req domain.LoanCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		loan, err := a.service.CreateLoan(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"loan": loan})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleLoanActions(w http.ResponseWriter, r *http.Request) {
	id, action, err := parseResourcePath(r.URL.Path, "/api/v1/loans/")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := a.service.DeleteLoan(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "mark-paid" && r.Method == http.MethodPost:
		loan, err := a.service.MarkLoanPaid(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loan": loan})
	case action == "" || action == "mark-paid":
		a.writeMethodNotAllowed(w)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown loan action %q", action))
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cashiers, err := a.auth.ListCashiers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// parseSaleFilter reads from/to as dates in the shop's time zone or as RFC 3339 instants.
// A bare "to" date covers the whole day.
func (a *API) parseSaleFilter(r *http.Request) (domain.SaleFilter, error) {
	q := r.URL.Query()
	filter := domain.SaleFilter{Customer: strings.TrimSpace(q.Get("customer"))}

	if raw := strings.TrimSpace(q.Get("credit")); raw != "" {
		credit, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SaleFilter{}, errors.New("invalid credit flag")
		}
		filter.CreditOnly = credit
	}

	loc := a.service.Location()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, _, err := parseInstant(raw, loc)
		if err != nil {
			return domain.SaleFilter{}, fmt.Errorf("invalid from: %w", err)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, dateOnly, err := parseInstant(raw, loc)
		if err != nil {
			return domain.SaleFilter{}, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		filter.To = &to
	}
	return filter, nil
}

func parseInstant(raw string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, errors.New("expected YYYY-MM-DD or RFC 3339")
	}
	return t, false, nil
}

// parseResourcePath splits "/prefix/{id}/{action}" into its id and optional action.
func parseResourcePath(path string, prefix string) (int64, string, error) {
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if tail == "" {
		return 0, "", errors.New("resource id required")
	}
	rawID, action, _ := strings.Cut(tail, "/")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		return 0, "", fmt.Errorf("invalid id %q", rawID)
	}
	return id, strings.Trim(action, "/"), nil
}
