// internal/service/rule/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/application"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// RuleHandler 封装了规则服务的 HTTP 处理器
type RuleHandler struct {
	checkout *application.CheckoutService
	detector *application.Detector
}

func NewRuleHandler(checkout *application.CheckoutService, detector *application.Detector) *RuleHandler {
	return &RuleHandler{checkout: checkout, detector: detector}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *RuleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout", h.handleCheckout)
	mux.HandleFunc("POST /checkout/validate", h.handleValidate)
	mux.HandleFunc("POST /checkout/discounts", h.handleDiscounts)
	mux.HandleFunc("DELETE /checkout/snapshot", h.handleInvalidateSnapshot)
	mux.HandleFunc("POST /mutations", h.handleMutation)
	mux.HandleFunc("POST /mutations/stage", h.handleStage)
}

func (h *RuleHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.checkout.Checkout(ctx, req.ToCart())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (h *RuleHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.checkout.Validate(ctx, req.ToCart())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := application.ValidateResponse{
		OK:            result.OK(),
		Violation:     application.NewViolationDTO(result.Violation),
		DiscountRules: result.DiscountRules,
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

// handleDiscounts 只返回折扣明细；购物车违反规则时同样返回 409。
func (h *RuleHandler) handleDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.checkout.Checkout(ctx, req.ToCart())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !resp.OK {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp.Discounts)
}

func (h *RuleHandler) handleInvalidateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.InvalidateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.checkout.InvalidateSnapshot(ctx, req.EventID, req.CartKey); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) handleMutation(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var m domain.Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.detector.OnMutation(ctx, m); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RuleHandler) handleStage(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	state := req.State()
	if state == nil {
		http.Error(w, "state for subject is missing", http.StatusBadRequest)
		return
	}
	if err := h.detector.StageBefore(ctx, req.Subject, req.SubjectID, state); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, application.ErrInvalidCart),
		errors.Is(err, domain.ErrUnknownSubject),
		errors.Is(err, domain.ErrMissingState):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownCriterionTerm),
		errors.Is(err, domain.ErrUnknownConnector),
		errors.Is(err, domain.ErrUnknownRuleType):
		// 规则数据损坏，必须暴露出来由上游修复
		status = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("rule configuration error")
	default:
		status = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
