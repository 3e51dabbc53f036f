package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/auth"
	"github.com/pharmadesk/pharmadesk/internal/ops"
)

type shipperPayload struct {
	ShipperID int64  `json:"shipper_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Active    bool   `json:"active"`
}

func handleListShippers(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	shippers, err := deps.Repo.ListShippers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list shippers")
		return
	}
	payloads := make([]shipperPayload, 0, len(shippers))
	for _, s := range shippers {
		payloads = append(payloads, shipperPayload{
			ShipperID: s.ShipperID,
			Name:      s.Name,
			Phone:     s.Phone,
			Active:    s.Active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"shippers": payloads})
}

func handleCreateShipper(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	shipper, err := deps.Repo.CreateShipper(r.Context(), ops.CreateShipperInput{
		Actor: auth.Actor(r.Context(), deps.DefaultActor),
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create shipper")
		return
	}
	writeJSON(w, http.StatusCreated, shipperPayload{
		ShipperID: shipper.ShipperID,
		Name:      shipper.Name,
		Phone:     shipper.Phone,
		Active:    shipper.Active,
	})
}

type drugPayload struct {
	DrugID    int64   `json:"drug_id"`
	Name      string  `json:"name"`
	Form      string  `json:"form,omitempty"`
	Strength  string  `json:"strength,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Active    bool    `json:"active"`
}

func drugToPayload(d ops.Drug) drugPayload {
	return drugPayload{
		DrugID:    d.DrugID,
		Name:      d.Name,
		Form:      d.Form,
		Strength:  d.Strength,
		UnitPrice: d.UnitPrice,
		Active:    d.Active,
	}
}

func handleListDrugs(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	drugs, err := deps.Repo.ListDrugs(r.Context(), ops.ListDrugsInput{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list drugs")
		return
	}
	payloads := make([]drugPayload, 0, len(drugs))
	for _, d := range drugs {
		payloads = append(payloads, drugToPayload(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drugs": payloads})
}

func handleCreateDrug(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string  `json:"name"`
		Form      string  `json:"form"`
		Strength  string  `json:"strength"`
		UnitPrice float64 `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.UnitPrice < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "unit_price must not be negative")
		return
	}

	drug, err := deps.Repo.CreateDrug(r.Context(), ops.CreateDrugInput{
		Actor:     auth.Actor(r.Context(), deps.DefaultActor),
		Name:      req.Name,
		Form:      req.Form,
		Strength:  req.Strength,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create drug")
		return
	}
	writeJSON(w, http.StatusCreated, drugToPayload(drug))
}

func handlePatchDrug(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Name      *string  `json:"name"`
		Form      *string  `json:"form"`
		Strength  *string  `json:"strength"`
		UnitPrice *float64 `json:"unit_price"`
		Active    *bool    `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	drug, err := deps.Repo.UpdateDrug(r.Context(), ops.UpdateDrugInput{
		Actor:     auth.Actor(r.Context(), deps.DefaultActor),
		DrugID:    id,
		Name:      req.Name,
		Form:      req.Form,
		Strength:  req.Strength,
		UnitPrice: req.UnitPrice,
		Active:    req.Active,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "drug not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update drug")
		return
	}
	writeJSON(w, http.StatusOK, drugToPayload(drug))
}

type stockPayload struct {
	DrugID       int64     `json:"drug_id"`
	DrugName     string    `json:"drug_name"`
	OnHand       int       `json:"on_hand"`
	ReorderPoint int       `json:"reorder_point"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func stockToPayload(s ops.StockLevel) stockPayload {
	return stockPayload{
		DrugID:       s.DrugID,
		DrugName:     s.DrugName,
		OnHand:       s.OnHand,
		ReorderPoint: s.ReorderPoint,
		UpdatedAt:    s.UpdatedAt,
	}
}

func handleListStock(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	levels, err := deps.Repo.ListStockLevels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list stock levels")
		return
	}
	payloads := make([]stockPayload, 0, len(levels))
	for _, s := range levels {
		payloads = append(payloads, stockToPayload(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": payloads})
}

func handleAdjustStock(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	drugID, ok := pathID(w, r, "drug_id")
	if !ok {
		return
	}
	var req struct {
		Delta        int  `json:"delta"`
		ReorderPoint *int `json:"reorder_point"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Delta == 0 && req.ReorderPoint == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "delta or reorder_point is required")
		return
	}

	level, err := deps.Repo.AdjustStock(r.Context(), ops.AdjustStockInput{
		Actor:        auth.Actor(r.Context(), deps.DefaultActor),
		DrugID:       drugID,
		Delta:        req.Delta,
		ReorderPoint: req.ReorderPoint,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "drug not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to adjust stock")
		return
	}
	writeJSON(w, http.StatusOK, stockToPayload(level))
}
