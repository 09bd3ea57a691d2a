package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/attendance"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
)

// Requests

type CreateAppointmentRequest struct {
	ProviderID string `json:"providerId" validate:"required,uuid"`
	PatientID  string `json:"patientId" validate:"required,uuid"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"startTime" validate:"required,datetime=15:04"`
	Duration   int    `json:"duration" validate:"omitempty,gt=0,lte=1440"`
	Procedure  string `json:"procedure" validate:"max=255"`
	Notes      string `json:"notes"`
}

type UpdateAppointmentRequest struct {
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"startTime" validate:"omitempty,datetime=15:04"`
	Duration  *int    `json:"duration" validate:"omitempty,gt=0,lte=1440"`
	Procedure *string `json:"procedure" validate:"omitempty,max=255"`
	Notes     *string `json:"notes"`
}

type CreateBlockedTimeRequest struct {
	ProviderID string  `json:"providerId" validate:"required,uuid"`
	Start      string  `json:"start" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	End        string  `json:"end" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Kind       string  `json:"kind" validate:"required,oneof=vacation break meeting personal maintenance"`
	Reason     *string `json:"reason" validate:"omitempty,max=255"`
}

type BookAttendanceRequest struct {
	AttendanceType    string  `json:"attendanceType" validate:"required,oneof=avulso protocolo"`
	Blocking          bool    `json:"blocking"`
	PatientID         *string `json:"patientId" validate:"omitempty,uuid"`
	ProviderID        string  `json:"providerId" validate:"required,uuid"`
	UnitID            string  `json:"unitId" validate:"required,uuid"`
	Date              string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime         string  `json:"startTime" validate:"required,datetime=15:04"`
	Duration          int     `json:"duration" validate:"omitempty,gt=0,lte=1440"`
	PatientProtocolID *string `json:"patientProtocolId" validate:"omitempty,uuid"`
	ServiceSessionID  *string `json:"serviceSessionId" validate:"omitempty,uuid"`
	ProtocolServiceID *string `json:"protocolServiceId" validate:"omitempty,uuid"`
	Procedure         string  `json:"procedure" validate:"max=255"`
	Notes             string  `json:"notes"`
}

type CreatePatientProtocolRequest struct {
	PatientID  string `json:"patientId" validate:"required,uuid"`
	ProtocolID string `json:"protocolId" validate:"required,uuid"`
}

// Responses

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"providerId"`
	PatientID  uuid.UUID `json:"patientId"`
	Date       string    `json:"date"`
	StartTime  string    `json:"startTime"`
	Duration   int       `json:"duration"`
	Procedure  string    `json:"procedure"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.AppointmentSlot) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		ProviderID: a.ProviderID,
		PatientID:  a.PatientID,
		Date:       a.Date.Format(time.DateOnly),
		StartTime:  a.StartTime.String(),
		Duration:   a.DurationMinutes,
		Procedure:  a.Procedure,
		Status:     string(a.Status),
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type BlockedTimeResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"providerId"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Kind       string    `json:"kind"`
	Reason     *string   `json:"reason,omitempty"`
	Active     bool      `json:"active"`
}

func toBlockedTimeResponse(b *appointment.BlockedInterval) BlockedTimeResponse {
	return BlockedTimeResponse{
		ID:         b.ID,
		ProviderID: b.ProviderID,
		Start:      b.Start,
		End:        b.End,
		Kind:       string(b.Kind),
		Reason:     b.Reason,
		Active:     b.Active,
	}
}

type ConflictResponse struct {
	Kind     string     `json:"kind"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Reason   string     `json:"reason"`
	SourceID *uuid.UUID `json:"sourceId,omitempty"`
}

func toConflictResponses(cs []appointment.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(cs))
	for _, c := range cs {
		resp := ConflictResponse{Kind: string(c.Kind), Reason: c.Reason}
		if !c.Start.IsZero() {
			start, end := c.Start, c.End
			resp.Start, resp.End = &start, &end
		}
		if c.SourceID != uuid.Nil {
			id := c.SourceID
			resp.SourceID = &id
		}
		out = append(out, resp)
	}
	return out
}

type AvailabilityResponse struct {
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

type AttendanceResponse struct {
	ID                uuid.UUID  `json:"id"`
	AttendanceType    string     `json:"attendanceType"`
	Blocking          bool       `json:"blocking"`
	PatientID         *uuid.UUID `json:"patientId,omitempty"`
	ProviderID        uuid.UUID  `json:"providerId"`
	UnitID            uuid.UUID  `json:"unitId"`
	PatientProtocolID *uuid.UUID `json:"patientProtocolId,omitempty"`
	ServiceSessionID  *uuid.UUID `json:"serviceSessionId,omitempty"`
	Date              string     `json:"date"`
	StartTime         string     `json:"startTime"`
	Duration          int        `json:"duration"`
	Procedure         string     `json:"procedure"`
	Notes             string     `json:"notes,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toAttendanceResponse(a *attendance.Attendance) AttendanceResponse {
	return AttendanceResponse{
		ID:                a.ID,
		AttendanceType:    string(a.Type),
		Blocking:          a.Blocking,
		PatientID:         a.PatientID,
		ProviderID:        a.ProviderID,
		UnitID:            a.UnitID,
		PatientProtocolID: a.PatientProtocolID,
		ServiceSessionID:  a.ServiceSessionID,
		Date:              a.Date.Format(time.DateOnly),
		StartTime:         a.StartTime.String(),
		Duration:          a.DurationMinutes,
		Procedure:         a.Procedure,
		Notes:             a.Notes,
		Status:            string(a.Status),
		CreatedAt:         a.CreatedAt,
	}
}

type SessionResponse struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"patientProtocolId"`
	ServiceID      uuid.UUID `json:"serviceId"`
	SessionNumber  int       `json:"sessionNumber"`
	TotalSessions  int       `json:"totalSessions"`
	Status         string    `json:"status"`
}

func toSessionResponses(sessions []protocol.ServiceSession) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:             s.ID,
			SubscriptionID: s.SubscriptionID,
			ServiceID:      s.ServiceID,
			SessionNumber:  s.SessionNumber,
			TotalSessions:  s.TotalSessions,
			Status:         string(s.Status),
		})
	}
	return out
}

type PatientProtocolResponse struct {
	ID         uuid.UUID         `json:"id"`
	PatientID  uuid.UUID         `json:"patientId"`
	ProtocolID uuid.UUID         `json:"protocolId"`
	CreatedAt  time.Time         `json:"createdAt"`
	Sessions   []SessionResponse `json:"sessions"`
}

type ProgressResponse struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Progress  string `json:"progress"`
}

type ErrorResponse struct {
	Error     string             `json:"error"`
	Details   string             `json:"details,omitempty"`
	Conflicts []ConflictResponse `json:"conflicts,omitempty"`
}
