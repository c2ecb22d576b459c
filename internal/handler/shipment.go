package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
)

func writeShipment(w http.ResponseWriter, s *shipment.Shipment) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, s) })
}

func writeShipments(w http.ResponseWriter, list []shipment.Shipment) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, list, encodeShipment) })
}

func (h *Handler) orderShipment(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.shipments.ForOrder(r.Context(), p, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipment(w, s)
}

func (h *Handler) myShipments(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.shipments.ListForCustomer(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipments(w, list)
}

func (h *Handler) adminListShipments(w http.ResponseWriter, r *http.Request) {
	list, err := h.shipments.ListAll(r.Context(), principal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipments(w, list)
}

func (h *Handler) staffListShipments(w http.ResponseWriter, r *http.Request) {
	list, err := h.shipments.ListAssigned(r.Context(), principal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipments(w, list)
}

func (h *Handler) adminAssignShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "shipmentID")
	if !ok {
		h.fail(w, r, shipment.ErrNotFound)
		return
	}
	var staffID int64
	err := readObject(r, func(d *jx.Decoder, key string) error {
		if key != "staff_id" {
			return d.Skip()
		}
		var err error
		staffID, err = d.Int64()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if staffID <= 0 {
		h.fail(w, r, badRequestf("staff_id is required"))
		return
	}
	s, err := h.shipments.AssignStaff(r.Context(), principal(r.Context()), id, staffID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipment(w, s)
}

type staffAction func(ctx context.Context, staff auth.Principal, shipmentID int64) (*shipment.Shipment, error)

func (h *Handler) staffTransition(w http.ResponseWriter, r *http.Request, action staffAction) {
	id, ok := pathID(r, "shipmentID")
	if !ok {
		h.fail(w, r, shipment.ErrNotFound)
		return
	}
	s, err := action(r.Context(), principal(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeShipment(w, s)
}

func (h *Handler) staffShip(w http.ResponseWriter, r *http.Request) {
	h.staffTransition(w, r, h.shipments.MarkShipped)
}

func (h *Handler) staffDeliver(w http.ResponseWriter, r *http.Request) {
	h.staffTransition(w, r, h.shipments.MarkDelivered)
}

func (h *Handler) staffUpdateCarrier(w http.ResponseWriter, r *http.Request) {
	var carrier string
	err := readObject(r, func(d *jx.Decoder, key string) error {
		if key != "carrier" {
			return d.Skip()
		}
		var err error
		carrier, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.staffTransition(w, r, func(ctx context.Context, staff auth.Principal, id int64) (*shipment.Shipment, error) {
		return h.shipments.UpdateCarrier(ctx, staff, id, carrier)
	})
}
