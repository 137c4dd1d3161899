package handlers

import (
	"net/http"

	"github.com/BaSui01/tripflow/api"
	"github.com/BaSui01/tripflow/routing"
	"github.com/BaSui01/tripflow/types"
)

// CapabilityHandler 暴露路由表
type CapabilityHandler struct {
	resp api.CapabilitiesResponse
}

// NewCapabilityHandler 路由表构造后不可变，响应预先计算
func NewCapabilityHandler(table *routing.Table, tripPlan []types.IntentLabel, handoffLimit int) *CapabilityHandler {
	inPlan := make(map[types.IntentLabel]bool, len(tripPlan))
	for _, l := range tripPlan {
		inPlan[l] = true
	}
	entries := table.Entries()
	caps := make([]api.CapabilityInfo, 0, len(entries))
	for _, e := range entries {
		caps = append(caps, api.CapabilityInfo{
			Label:      e.Label,
			Agent:      string(e.Agent),
			InTripPlan: inPlan[e.Label],
		})
	}
	plan := make([]types.IntentLabel, len(tripPlan))
	copy(plan, tripPlan)

	return &CapabilityHandler{resp: api.CapabilitiesResponse{
		Capabilities: caps,
		TripPlan:     plan,
		HandoffLimit: handoffLimit,
	}}
}

// HandleList 处理 GET /api/v1/capabilities
// @Summary 路由能力
// @Tags routing
// @Produce json
// @Success 200 {object} Response{data=api.CapabilitiesResponse}
// @Security ApiKeyAuth
// @Router /api/v1/capabilities [get]
func (h *CapabilityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.resp)
}
