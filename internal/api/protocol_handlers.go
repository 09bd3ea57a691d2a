package api

import (
	"net/http"

	"go.uber.org/zap"
)

func createPatientProtocolHandler(svc ProtocolService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientProtocolRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateStruct(req); err != nil {
			handleError(w, r, log, err)
			return
		}

		patientID, err := parseID("patientId", req.PatientID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		protocolID, err := parseID("protocolId", req.ProtocolID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		sub, sessions, err := svc.CreateSubscription(r.Context(), patientID, protocolID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, PatientProtocolResponse{
			ID:         sub.ID,
			PatientID:  sub.PatientID,
			ProtocolID: sub.ProtocolID,
			CreatedAt:  sub.CreatedAt,
			Sessions:   toSessionResponses(sessions),
		})
	}
}

func listSessionsHandler(svc ProtocolService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		sessions, err := svc.ListSessions(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponses(sessions))
	}
}

func sessionProgressHandler(svc ProtocolService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriptionID, ok := idParam(w, r, "subscriptionId")
		if !ok {
			return
		}
		serviceID, ok := idParam(w, r, "serviceId")
		if !ok {
			return
		}

		p, err := svc.Progress(r.Context(), subscriptionID, serviceID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, ProgressResponse{
			Completed: p.Completed,
			Total:     p.Total,
			Progress:  p.String(),
		})
	}
}
