package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sweetshop/backend/internal/adapter/token"
	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/core/service"
	"github.com/sweetshop/backend/internal/infra/metrics"
	"github.com/sweetshop/backend/internal/port"
)

type HTTPHandler struct {
	auth      *service.AuthService
	sweets    *service.SweetService
	purchases *service.PurchaseService
	verifier  *token.JWTManager
	logger    *zap.Logger
}

func NewHTTPHandler(auth *service.AuthService, sweets *service.SweetService, purchases *service.PurchaseService, verifier *token.JWTManager, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		auth:      auth,
		sweets:    sweets,
		purchases: purchases,
		verifier:  verifier,
		logger:    logger,
	}
}

// Routes registers every endpoint on the mux. Reads and purchase are open;
// catalog mutations require the admin role.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.RegisterUser)
	mux.HandleFunc("POST /api/auth/login", h.Login)

	mux.HandleFunc("GET /api/sweets", h.ListSweets)
	mux.HandleFunc("GET /api/sweets/search", h.SearchSweets)
	mux.HandleFunc("GET /api/sweets/{id}", h.GetSweet)
	mux.HandleFunc("POST /api/sweets/{id}/purchase", h.Purchase)

	mux.HandleFunc("POST /api/sweets", h.requireRole(domain.RoleAdmin, h.CreateSweet))
	mux.HandleFunc("PUT /api/sweets/{id}", h.requireRole(domain.RoleAdmin, h.UpdateSweet))
	mux.HandleFunc("DELETE /api/sweets/{id}", h.requireRole(domain.RoleAdmin, h.DeleteSweet))
	mux.HandleFunc("POST /api/sweets/{id}/restock", h.requireRole(domain.RoleAdmin, h.Restock))

	mux.HandleFunc("GET /health", h.HealthCheck)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token,omitempty"`
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sweetRequest struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Description string  `json:"description"`
}

// purchaseRequest leaves Amount a pointer so an absent field defaults to 1
// while an explicit zero is rejected as invalid.
type purchaseRequest struct {
	Amount *int `json:"amount"`
}

type restockRequest struct {
	Amount int `json:"amount"`
}

type sweetResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	InStock     bool    `json:"inStock"`
	Description string  `json:"description,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
}

func toSweetResponse(s *domain.Sweet) sweetResponse {
	return sweetResponse{
		ID:          s.ID,
		Name:        s.Name,
		Category:    string(s.Category),
		Price:       s.Price,
		Quantity:    s.Quantity,
		InStock:     s.InStock,
		Description: s.Description,
	}
}

func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, domain.RoleUser)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, service.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  string(user.Role),
	})
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokenString, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: tokenString,
		Email: user.Email,
		Role:  string(user.Role),
	})
}

func (h *HTTPHandler) CreateSweet(w http.ResponseWriter, r *http.Request) {
	var req sweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sweet, err := h.sweets.Create(r.Context(), req.Name, domain.Category(req.Category), req.Price, req.Quantity, req.Description)
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSweetResponse(sweet))
}

func (h *HTTPHandler) GetSweet(w http.ResponseWriter, r *http.Request) {
	sweet, err := h.sweets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweetResponse(sweet))
}

func (h *HTTPHandler) ListSweets(w http.ResponseWriter, r *http.Request) {
	sweets, err := h.sweets.List(r.Context())
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweetResponses(sweets))
}

func (h *HTTPHandler) SearchSweets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := port.SearchFilter{
		Name:     q.Get("name"),
		Category: domain.Category(q.Get("category")),
	}
	if v := q.Get("minPrice"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid minPrice")
			return
		}
		filter.MinPrice = p
	}
	if v := q.Get("maxPrice"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid maxPrice")
			return
		}
		filter.MaxPrice = p
	}

	sweets, err := h.sweets.Search(r.Context(), filter)
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweetResponses(sweets))
}

func (h *HTTPHandler) UpdateSweet(w http.ResponseWriter, r *http.Request) {
	var req sweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sweet, err := h.sweets.Update(r.Context(), r.PathValue("id"), req.Name, domain.Category(req.Category), req.Price, req.Quantity, req.Description)
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweetResponse(sweet))
}

func (h *HTTPHandler) DeleteSweet(w http.ResponseWriter, r *http.Request) {
	if err := h.sweets.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeSweetError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sweet, err := h.sweets.Restock(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		h.writeSweetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweetResponse(sweet))
}

// Purchase is intentionally open: no authentication required. A valid
// bearer token, when present, only attributes the ledger entry.
func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	req := purchaseRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}

	var userID string
	if claims := h.principal(r); claims != nil {
		userID = claims.Subject
	}

	sweet, err := h.purchases.Purchase(r.Context(), r.PathValue("id"), userID, amount)
	if err != nil {
		var insufficient *service.InsufficientStockError
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			metrics.PurchaseTotal.WithLabelValues("invalid_amount").Inc()
			writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		case errors.As(err, &insufficient):
			metrics.PurchaseTotal.WithLabelValues("insufficient_stock").Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:     "insufficient stock",
				Available: &insufficient.Available,
			})
		case errors.Is(err, service.ErrNotFound):
			metrics.PurchaseTotal.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusNotFound, "sweet not found")
		default:
			metrics.PurchaseTotal.WithLabelValues("store_unavailable").Inc()
			h.logger.Error("purchase failed", zap.String("sweet_id", r.PathValue("id")), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
		}
		return
	}

	metrics.PurchaseTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, toSweetResponse(sweet))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal returns the verified claims from the Authorization header, or
// nil when the header is absent or invalid.
func (h *HTTPHandler) principal(r *http.Request) *token.Claims {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil
	}
	claims, err := h.verifier.Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return nil
	}
	return claims
}

func (h *HTTPHandler) requireRole(role domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := h.principal(r)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		if claims.Role != role {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r)
	}
}

func (h *HTTPHandler) writeSweetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "sweet not found")
	case errors.Is(err, service.ErrInvalidSweet), errors.Is(err, service.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("catalog operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toSweetResponses(sweets []domain.Sweet) []sweetResponse {
	out := make([]sweetResponse, 0, len(sweets))
	for i := range sweets {
		out = append(out, toSweetResponse(&sweets[i]))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
