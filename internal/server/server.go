package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitrails/internal/config"
	"splitrails/internal/coordinator"
	"splitrails/internal/escrow"
	"splitrails/internal/hmacauth"
	"splitrails/internal/idempotency"
	"splitrails/internal/models"
	"splitrails/internal/split"
	"splitrails/internal/status"
	"splitrails/internal/storage"
)

type Server struct {
	cfg     *config.AppConfig
	store   storage.Store
	ledger  escrow.Ledger
	rates   coordinator.RateSource
	idem    idempotency.Store
	hmac    *hmacauth.Verifier
	metrics *metricsRegistry

	httpServer *http.Server
	pollCtx    context.Context
	pollCancel context.CancelFunc

	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, store storage.Store, ledger escrow.Ledger, rates coordinator.RateSource, idem idempotency.Store) *Server {
	pollCtx, pollCancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:    cfg,
		store:  store,
		ledger: ledger,
		rates:  rates,
		idem:   idem,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.File.Secrets.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics:    newMetricsRegistry(),
		pollCtx:    pollCtx,
		pollCancel: pollCancel,
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := ledger.(escrow.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/bills", s.hmac.Middleware(http.HandlerFunc(s.handleCreateBill)))
	mux.HandleFunc("GET /api/v1/bills/{id}", s.handleGetBill)
	mux.Handle("POST /api/v1/bills/{id}/escrow", s.hmac.Middleware(http.HandlerFunc(s.handleActivateEscrow)))
	mux.Handle("POST /api/v1/bills/{id}/escrow/pay", s.hmac.Middleware(http.HandlerFunc(s.handlePayShare)))
	mux.Handle("POST /api/v1/bills/{id}/escrow/cancel", s.hmac.Middleware(http.HandlerFunc(s.handleCancel)))
	mux.Handle("POST /api/v1/bills/{id}/escrow/partial-settle", s.hmac.Middleware(http.HandlerFunc(s.handlePartialSettle)))
	mux.Handle("POST /api/v1/bills/{id}/escrow/auto-refund", s.hmac.Middleware(http.HandlerFunc(s.handleAutoRefund)))
	mux.Handle("POST /api/v1/bills/{id}/escrow/refund", s.hmac.Middleware(http.HandlerFunc(s.handleRefund)))
	mux.HandleFunc("GET /api/v1/bills/{id}/escrow/status", s.handleStatus)
	mux.Handle("/api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	slog.Info("API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.pollCancel()
	return s.httpServer.Shutdown(ctx)
}

// coordinatorFor builds a per-request coordinator acting as the given
// address. The ledger enforces authorization; the coordinator enforces the
// wallet and network preconditions.
func (s *Server) coordinatorFor(addr string) *coordinator.Coordinator {
	wallet := &coordinator.StaticWallet{
		Addr:  common.HexToAddress(addr),
		Chain: s.cfg.Chain.ChainID,
	}
	c := coordinator.New(s.ledger, wallet, s.rates, coordinator.Config{
		ChainID:        s.cfg.Chain.ChainID,
		SlowThreshold:  s.cfg.Escrow.SlowThreshold,
		ConfirmTimeout: s.cfg.Escrow.ConfirmTimeout,
	})
	c.OnAdvisory = func(a coordinator.Advisory) {
		slog.Warn("transaction slow to confirm", "tx", a.TxHash, "elapsed", a.Elapsed)
	}
	return c
}

type billRequest struct {
	Title              string               `json:"title"`
	CreatorAddress     string               `json:"creatorAddress"`
	BeneficiaryAddress string               `json:"beneficiaryAddress,omitempty"`
	Tax                float64              `json:"tax"`
	Tip                float64              `json:"tip"`
	Participants       []participantPayload `json:"participants"`
	Items              []itemPayload        `json:"items"`
}

type participantPayload struct {
	ID          string `json:"id,omitempty"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName,omitempty"`
}

type itemPayload struct {
	Description    string   `json:"description"`
	Amount         float64  `json:"amount"`
	ParticipantIDs []string `json:"participantIds"`
}

type billResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	EscrowBillID string         `json:"escrowBillId,omitempty"`
	Shares       []sharePayload `json:"shares"`
}

type sharePayload struct {
	ParticipantID string  `json:"participantId"`
	Amount        float64 `json:"amount"`
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var payload billRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := validateBillRequest(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bill := billFromRequest(payload)
	if err := s.store.SaveBill(r.Context(), bill); err != nil {
		slog.Error("save bill failed", "error", err)
		http.Error(w, "failed to save bill", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, billToResponse(bill))
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, billToResponse(bill))
}

func (s *Server) handleActivateEscrow(w http.ResponseWriter, r *http.Request) {
	key, ok := s.idempotencyKey(w, r)
	if !ok {
		return
	}
	if s.replayCached(w, r, key) {
		return
	}

	bill, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	if bill.EscrowBillID != "" {
		s.writeEscrowError(w, escrow.ErrBillExists, "create")
		return
	}

	shares := split.CalculateShares(bill)
	coord := s.coordinatorFor(bill.CreatorAddress)
	id, receipt, err := coord.CreateEscrowBill(r.Context(), bill, shares)
	if err != nil {
		s.metrics.incOp("create", "failed")
		s.writeEscrowError(w, err, "create")
		return
	}
	s.metrics.incOp("create", "confirmed")

	bill.EscrowBillID = id.Hex()
	bill.Status = models.BillStatusActive
	if err := s.store.SaveBill(r.Context(), bill); err != nil {
		slog.Error("save activated bill failed", "bill", bill.ID, "error", err)
	}
	s.watchEscrow(bill.ID, id)

	s.respondCached(w, r, key, http.StatusCreated, map[string]string{
		"escrowBillId": id.Hex(),
		"txHash":       receipt.TxHash,
		"status":       "confirmed",
	})
}

type escrowActionRequest struct {
	Address string `json:"address"`
}

func (s *Server) handlePayShare(w http.ResponseWriter, r *http.Request) {
	key, ok := s.idempotencyKey(w, r)
	if !ok {
		return
	}
	if s.replayCached(w, r, key) {
		return
	}

	bill, action, ok := s.loadEscrowAction(w, r)
	if !ok {
		return
	}
	id := escrow.ParseBillID(bill.EscrowBillID)
	payer := common.HexToAddress(action.Address)

	amount, err := s.ledger.GetShare(r.Context(), id, payer)
	if err != nil {
		s.metrics.incPayment("failed")
		s.writeEscrowError(w, err, "pay")
		return
	}
	if amount.Sign() == 0 {
		s.metrics.incPayment("rejected")
		s.writeEscrowError(w, escrow.ErrNotParticipant, "pay")
		return
	}

	receipt, err := s.coordinatorFor(action.Address).PayEscrowShare(r.Context(), id, amount)
	if err != nil {
		s.metrics.incPayment("failed")
		s.writeEscrowError(w, err, "pay")
		return
	}
	s.metrics.incPayment("confirmed")

	s.respondCached(w, r, key, http.StatusOK, map[string]string{
		"txHash": receipt.TxHash,
		"amount": amount.String(),
		"status": "confirmed",
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowAction(w, r, "cancel", func(ctx context.Context, coord *coordinator.Coordinator, id escrow.BillID, _ common.Address) (*escrow.Receipt, error) {
		return coord.CancelAndRefund(ctx, id)
	})
}

func (s *Server) handlePartialSettle(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowAction(w, r, "partial-settle", func(ctx context.Context, coord *coordinator.Coordinator, id escrow.BillID, _ common.Address) (*escrow.Receipt, error) {
		return coord.PartialSettle(ctx, id)
	})
}

func (s *Server) handleAutoRefund(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowAction(w, r, "auto-refund", func(ctx context.Context, coord *coordinator.Coordinator, id escrow.BillID, _ common.Address) (*escrow.Receipt, error) {
		return coord.AutoRefundIfExpired(ctx, id)
	})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowAction(w, r, "refund", func(ctx context.Context, coord *coordinator.Coordinator, id escrow.BillID, caller common.Address) (*escrow.Receipt, error) {
		return coord.RefundParticipant(ctx, id, caller)
	})
}

func (s *Server) handleEscrowAction(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, *coordinator.Coordinator, escrow.BillID, common.Address) (*escrow.Receipt, error)) {
	bill, action, ok := s.loadEscrowAction(w, r)
	if !ok {
		return
	}
	id := escrow.ParseBillID(bill.EscrowBillID)
	caller := common.HexToAddress(action.Address)

	receipt, err := call(r.Context(), s.coordinatorFor(action.Address), id, caller)
	if err != nil {
		s.metrics.incOp(op, "failed")
		s.writeEscrowError(w, err, op)
		return
	}
	s.metrics.incOp(op, "confirmed")
	writeJSON(w, http.StatusOK, map[string]string{"txHash": receipt.TxHash, "status": "confirmed"})
}

type participantStatus struct {
	ParticipantID string `json:"participantId"`
	Address       string `json:"address"`
	Share         string `json:"share"`
	Paid          bool   `json:"paid"`
	CanRefund     bool   `json:"canRefund"`
}

type statusResponse struct {
	EscrowBillID string              `json:"escrowBillId"`
	TotalAmount  string              `json:"totalAmount"`
	Participants int                 `json:"participants"`
	PaidCount    int                 `json:"paidCount"`
	Settled      bool                `json:"settled"`
	Cancelled    bool                `json:"cancelled"`
	Deadline     time.Time           `json:"deadline"`
	IsComplete   bool                `json:"isComplete"`
	IsExpired    bool                `json:"isExpired"`
	Urgency      string              `json:"urgency"`
	PerAddress   []participantStatus `json:"perParticipant"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	if bill.EscrowBillID == "" {
		s.writeEscrowError(w, escrow.ErrBillNotFound, "status")
		return
	}
	id := escrow.ParseBillID(bill.EscrowBillID)

	info, err := s.ledger.GetBillInfo(r.Context(), id)
	if err != nil {
		s.writeEscrowError(w, err, "status")
		return
	}
	snapshot := status.Project(info, time.Now())

	resp := statusResponse{
		EscrowBillID: bill.EscrowBillID,
		TotalAmount:  info.TotalAmount.String(),
		Participants: info.ParticipantCount,
		PaidCount:    info.PaidCount,
		Settled:      info.Settled,
		Cancelled:    info.Cancelled,
		Deadline:     info.Deadline,
		IsComplete:   snapshot.IsComplete,
		IsExpired:    snapshot.IsExpired,
		Urgency:      string(snapshot.Urgency),
	}

	for _, p := range bill.Participants {
		addr := common.HexToAddress(p.Address)
		share, err := s.ledger.GetShare(r.Context(), id, addr)
		if err != nil {
			continue
		}
		if share.Sign() == 0 {
			continue
		}
		paid, _ := s.ledger.HasPaid(r.Context(), id, addr)
		refundable, _ := s.ledger.CanRefund(r.Context(), id, addr)
		resp.PerAddress = append(resp.PerAddress, participantStatus{
			ParticipantID: p.ID,
			Address:       p.Address,
			Share:         share.String(),
			Paid:          paid,
			CanRefund:     refundable,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	overall := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string      `json:"status"`
		RPC      interface{} `json:"rpc"`
		Database interface{} `json:"database"`
	}{overall, rpcInfo, dbInfo})
}

// watchEscrow starts a status poller for an activated bill. The poller stops
// itself at terminal state and flips the stored bill status to match.
func (s *Server) watchEscrow(billID string, id escrow.BillID) {
	poller := status.NewPoller(s.ledger, id, s.cfg.Escrow.StatusPoll, func(snapshot status.Snapshot) {
		if !snapshot.Info.Terminal() {
			return
		}
		newStatus := models.BillStatusSettled
		if snapshot.Info.Cancelled {
			newStatus = models.BillStatusCancelled
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bill, err := s.store.LoadBill(ctx, billID)
		if err != nil {
			slog.Warn("poller could not load bill", "bill", billID, "error", err)
			return
		}
		bill.Status = newStatus
		if err := s.store.SaveBill(ctx, bill); err != nil {
			slog.Warn("poller could not update bill status", "bill", billID, "error", err)
		}
	})

	s.metrics.pollerStarted()
	go func() {
		defer s.metrics.pollerStopped()
		if err := poller.Run(s.pollCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("status poller exited", "bill", billID, "error", err)
		}
	}()
}

// --- helpers ---

func (s *Server) loadBill(w http.ResponseWriter, r *http.Request) (*models.Bill, bool) {
	bill, err := s.store.LoadBill(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "bill not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("load bill failed", "error", err)
		http.Error(w, "failed to load bill", http.StatusInternalServerError)
		return nil, false
	}
	return bill, true
}

func (s *Server) loadEscrowAction(w http.ResponseWriter, r *http.Request) (*models.Bill, escrowActionRequest, bool) {
	var action escrowActionRequest
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return nil, action, false
	}
	if !common.IsHexAddress(action.Address) {
		http.Error(w, "address is required", http.StatusBadRequest)
		return nil, action, false
	}
	bill, ok := s.loadBill(w, r)
	if !ok {
		return nil, action, false
	}
	if bill.EscrowBillID == "" {
		s.writeEscrowError(w, escrow.ErrBillNotFound, "action")
		return nil, action, false
	}
	return bill, action, true
}

func (s *Server) idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return "", false
	}
	return r.PathValue("id") + ":" + key, true
}

func (s *Server) replayCached(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, _ := s.idem.Get(r.Context(), key)
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.StatusCode)
	_, _ = w.Write(existing.Response)
	return true
}

func (s *Server) respondCached(w http.ResponseWriter, r *http.Request, key string, code int, payload interface{}) {
	body, _ := json.Marshal(payload)
	record := idempotency.Record{
		StatusCode: code,
		Response:   body,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(s.cfg.Service.IdempotencyWindow),
	}
	_ = s.idem.Save(r.Context(), key, record)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (s *Server) writeEscrowError(w http.ResponseWriter, err error, op string) {
	ue := coordinator.Translate(err)
	slog.Info("escrow operation failed", "op", op, "code", ue.Code, "message", ue.Message)
	writeJSON(w, httpStatusFor(ue.Code), ue)
}

func httpStatusFor(code escrow.Code) int {
	switch code {
	case escrow.CodeBillNotFound:
		return http.StatusNotFound
	case escrow.CodeBillExists, escrow.CodeAlreadyPaid, escrow.CodeAlreadyRefunded, escrow.CodeBillClosed:
		return http.StatusConflict
	case escrow.CodeNotParticipant, escrow.CodeNotCreator:
		return http.StatusForbidden
	case escrow.CodeIncorrectAmount, escrow.CodeNoPayableParticipants, escrow.CodeParticipantNotFound,
		escrow.CodeInvalidFunding, escrow.CodeDeadlineNotReached, escrow.CodeNothingToSettle,
		escrow.CodeNotRefundable:
		return http.StatusUnprocessableEntity
	case escrow.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case escrow.CodeWalletNotConnected, escrow.CodeNetworkMismatch:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func validateBillRequest(req billRequest) error {
	if !common.IsHexAddress(req.CreatorAddress) {
		return errors.New("creatorAddress must be a valid address")
	}
	if req.BeneficiaryAddress != "" && !common.IsHexAddress(req.BeneficiaryAddress) {
		return errors.New("beneficiaryAddress must be a valid address")
	}
	if len(req.Participants) == 0 {
		return errors.New("at least one participant is required")
	}
	ids := make(map[string]bool, len(req.Participants))
	for _, p := range req.Participants {
		if p.ID == "" {
			return errors.New("every participant needs an id")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate participant id %q", p.ID)
		}
		ids[p.ID] = true
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("invalid participant address %q", p.Address)
		}
	}
	for _, item := range req.Items {
		for _, pid := range item.ParticipantIDs {
			if !ids[pid] {
				return fmt.Errorf("item %q references unknown participant %q", item.Description, pid)
			}
		}
	}
	return nil
}

func billFromRequest(req billRequest) *models.Bill {
	bill := &models.Bill{
		Title:              req.Title,
		CreatorAddress:     req.CreatorAddress,
		BeneficiaryAddress: req.BeneficiaryAddress,
		Tax:                req.Tax,
		Tip:                req.Tip,
		Status:             models.BillStatusDraft,
	}
	for _, p := range req.Participants {
		bill.Participants = append(bill.Participants, models.Participant{
			ID:          p.ID,
			Address:     p.Address,
			DisplayName: p.DisplayName,
		})
	}
	for _, item := range req.Items {
		bill.Items = append(bill.Items, models.Item{
			Description:    item.Description,
			Amount:         item.Amount,
			ParticipantIDs: item.ParticipantIDs,
		})
	}
	return bill
}

func billToResponse(bill *models.Bill) billResponse {
	resp := billResponse{
		ID:           bill.ID,
		Status:       string(bill.Status),
		EscrowBillID: bill.EscrowBillID,
	}
	for _, share := range split.CalculateShares(bill) {
		resp.Shares = append(resp.Shares, sharePayload{
			ParticipantID: share.ParticipantID,
			Amount:        share.Amount,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}
