package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/mercuria/core"
)

type handlers struct {
	server *Server
}

// errorStatus maps a sandbox error to its HTTP status and client message
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, ErrTokenInvalidated):
		return http.StatusUnauthorized, "Refresh token has been invalidated"
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, core.ErrInvalidToken):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be greater than zero"
	case errors.Is(err, ErrSameWallet):
		return http.StatusBadRequest, "Cannot transfer to same wallet"
	case errors.Is(err, ErrUnsupportedCurrency):
		return http.StatusBadRequest, "Unsupported currency"
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "Insufficient balance"
	case errors.Is(err, ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, "Wallet currencies differ"
	case errors.Is(err, ErrWalletExists):
		return http.StatusUnprocessableEntity, "Wallet already exists for this currency"
	case errors.Is(err, ErrEmailTaken):
		return http.StatusUnprocessableEntity, "Email already registered"
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict, "Idempotency key reused with a different request"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.JSON(status, gin.H{"error": msg})
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (h *handlers) tokenResponse(c *gin.Context, status int, access, refresh string, user *core.User) {
	c.JSON(status, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(h.server.accessTTL.Seconds()),
		"user":          user,
	})
}

// Register creates an account and its first session
func (h *handlers) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required,min=8"`
		FirstName string `json:"first_name" binding:"max=100"`
		LastName  string `json:"last_name" binding:"max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.server.ledger.Register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeError(c, err)
		return
	}

	access, refresh, err := h.server.sessions.Issue(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.tokenResponse(c, http.StatusCreated, access, refresh, user)
}

// Login handles the login request
func (h *handlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.server.ledger.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	access, refresh, err := h.server.sessions.Issue(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.tokenResponse(c, http.StatusOK, access, refresh, user)
}

// Refresh rotates the refresh token
func (h *handlers) Refresh(c *gin.Context) {
	h.server.refreshCalls.Add(1)
	if d := time.Duration(h.server.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}

	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, access, refresh, err := h.server.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	user, err := h.server.ledger.User(userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.tokenResponse(c, http.StatusOK, access, refresh, user)
}

// Logout invalidates the refresh token
func (h *handlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.server.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user
func (h *handlers) Me(c *gin.Context) {
	user, err := h.server.ledger.User(userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *handlers) ListWallets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"wallets": h.server.ledger.Wallets(userID(c))})
}

func (h *handlers) CreateWallet(c *gin.Context) {
	var req struct {
		Currency string `json:"currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	w, err := h.server.ledger.CreateWallet(userID(c), req.Currency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wallet": w})
}

func (h *handlers) GetWallet(c *gin.Context) {
	w, err := h.server.ledger.Wallet(userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

func (h *handlers) WalletEvents(c *gin.Context) {
	events, err := h.server.ledger.Events(userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) ListTransactions(c *gin.Context) {
	txs, err := h.server.ledger.Transactions(userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *handlers) GetTransaction(c *gin.Context) {
	tx, err := h.server.ledger.Transaction(userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Deposit credits a wallet
func (h *handlers) Deposit(c *gin.Context) {
	walletID := c.Param("id")
	h.movement(c, func(mv core.MovementRequest) (*core.Transaction, error) {
		return h.server.ledger.Deposit(userID(c), walletID, mv)
	})
}

// Withdraw debits a wallet
func (h *handlers) Withdraw(c *gin.Context) {
	walletID := c.Param("id")
	h.movement(c, func(mv core.MovementRequest) (*core.Transaction, error) {
		return h.server.ledger.Withdraw(userID(c), walletID, mv)
	})
}

func (h *handlers) movement(c *gin.Context, apply func(core.MovementRequest) (*core.Transaction, error)) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var mv core.MovementRequest
	if err := json.Unmarshal(raw, &mv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	key, ok := idempotencyKey(c, mv.IdempotencyKey)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency key mismatch"})
		return
	}
	mv.IdempotencyKey = key

	h.idempotent(c, key, raw, func() (*core.Transaction, error) { return apply(mv) })
}

// Transfer moves funds between wallets
func (h *handlers) Transfer(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var tr core.TransferRequest
	if err := json.Unmarshal(raw, &tr); err != nil || tr.FromWalletID == "" || tr.ToWalletID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	key, ok := idempotencyKey(c, tr.IdempotencyKey)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency key mismatch"})
		return
	}
	tr.IdempotencyKey = key

	h.idempotent(c, key, raw, func() (*core.Transaction, error) {
		return h.server.ledger.Transfer(userID(c), tr)
	})
}

// idempotencyKey reconciles the header and body keys
func idempotencyKey(c *gin.Context, body string) (string, bool) {
	header := c.GetHeader("Idempotency-Key")
	switch {
	case header == "":
		return body, true
	case body == "" || body == header:
		return header, true
	default:
		return "", false
	}
}

// idempotent applies a write at most once per user and key
func (h *handlers) idempotent(c *gin.Context, key string, raw []byte, apply func() (*core.Transaction, error)) {
	run := func() (int, []byte) {
		tx, err := apply()
		if err != nil {
			status, msg := errorStatus(err)
			body, _ := json.Marshal(gin.H{"error": msg})
			return status, body
		}
		body, _ := json.Marshal(gin.H{"transaction": tx})
		return http.StatusCreated, body
	}

	if key == "" {
		status, body := run()
		c.Data(status, "application/json; charset=utf-8", body)
		return
	}

	fp := Fingerprint(c.Request.Method, c.Request.URL.Path, raw)
	status, body, replayed, err := h.server.idem.Do(userID(c), key, fp, run)
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

func (h *handlers) Daily(c *gin.Context) {
	days := intQuery(c, "days", 7)
	c.JSON(http.StatusOK, gin.H{"data": h.server.analytics().daily(days, time.Now().UTC())})
}

func (h *handlers) Hourly(c *gin.Context) {
	hours := intQuery(c, "hours", 24)
	c.JSON(http.StatusOK, gin.H{"data": h.server.analytics().hourly(hours, time.Now().UTC())})
}

func (h *handlers) Summary(c *gin.Context) {
	summary, err := h.server.analytics().summary(c.DefaultQuery("period", "day"), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (h *handlers) UserAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.server.analytics().user(c.Param("id"))})
}

func (h *handlers) UserSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.server.analytics().snapshots(c.Param("id"), intQuery(c, "days", 30), time.Now().UTC())})
}

func intQuery(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
